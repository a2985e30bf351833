package service_test

import (
	"testing"
	"time"

	"agilekit/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetentionService_SweepDeletesOnlyInactiveRooms(t *testing.T) {
	// Arrange
	f := newFixture(t)
	demo := service.NewDemoService(f.rooms, 0, 1)
	demoRoom, err := demo.EnsureDemoRoom(f.ctx)
	require.NoError(t, err)
	stale := f.createRoom(t, service.CreateRoomInput{Name: "Old sprint"}, "bob")
	f.clk.Advance(6 * 24 * time.Hour)
	fresh := f.createRoom(t, service.CreateRoomInput{Name: "This sprint"})

	sweeper := service.NewRetentionService(f.store, f.clk, 0)

	// Act
	deleted, err := sweeper.Sweep(f.ctx)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)
	_, err = f.rooms.GetRoom(f.ctx, stale, "alice")
	assert.ErrorIs(t, err, service.ErrRoomNotFound)
	_, err = f.rooms.GetRoom(f.ctx, fresh, "alice")
	assert.NoError(t, err)
	_, err = f.rooms.GetRoom(f.ctx, demoRoom.ID, "")
	assert.NoError(t, err, "演示房间不受清理影响")
}

func TestRetentionService_ActivityKeepsRoomAlive(t *testing.T) {
	// Arrange
	f := newFixture(t)
	roomID := f.createRoom(t, service.CreateRoomInput{})
	f.clk.Advance(4 * 24 * time.Hour)
	require.NoError(t, f.rooms.CastVote(f.ctx, roomID, "alice", "5"))
	f.clk.Advance(2 * 24 * time.Hour)
	sweeper := service.NewRetentionService(f.store, f.clk, service.DefaultRetention)

	// Act
	deleted, err := sweeper.Sweep(f.ctx)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 0, deleted)
}
