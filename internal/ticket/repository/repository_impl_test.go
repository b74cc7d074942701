package repository_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/programador11r-tec/zkt-sub000/internal/ticket/domain"
	"github.com/programador11r-tec/zkt-sub000/internal/ticket/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:ticketdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Ticket{}))
	return db
}

func newTicket(t *testing.T, node *snowflake.Node, ticketNo string) *domain.Ticket {
	t.Helper()
	return &domain.Ticket{
		ID:          node.Generate(),
		TicketNo:    ticketNo,
		Plate:       "P-123ABC",
		Status:      domain.TicketStatusOpen,
		EntryAt:     time.Now().Add(-time.Hour),
		ReceptorNIT: "CF",
	}
}

func TestFindByNoMissingTicket(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := repository.Provide()

	_, err := repo.FindByNo(ctx, db, "T-NOPE")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCreateDuplicateTicketNo(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := repository.Provide()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	require.NoError(t, repo.Create(ctx, db, newTicket(t, node, "T-2001")))
	err = repo.Create(ctx, db, newTicket(t, node, "T-2001"))
	assert.ErrorIs(t, err, domain.ErrTicketExists)
}

func TestCloseIsGuarded(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := repository.Provide()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	require.NoError(t, repo.Create(ctx, db, newTicket(t, node, "T-2002")))

	exitAt := time.Now()
	closed, err := repo.Close(ctx, db, "T-2002", exitAt)
	require.NoError(t, err)
	assert.True(t, closed)

	// second close matches zero rows, the settlement that lost the race rolls back
	closed, err = repo.Close(ctx, db, "T-2002", exitAt)
	require.NoError(t, err)
	assert.False(t, closed)

	stored, err := repo.FindByNo(ctx, db, "T-2002")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusClosed, stored.Status)
	require.NotNil(t, stored.ExitAt)
}

func TestClosePreservesExistingExitAt(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := repository.Provide()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	ticket := newTicket(t, node, "T-2003")
	hardwareExit := time.Now().Add(-10 * time.Minute).UTC().Truncate(time.Second)
	ticket.ExitAt = &hardwareExit
	require.NoError(t, repo.Create(ctx, db, ticket))

	closed, err := repo.Close(ctx, db, "T-2003", time.Now())
	require.NoError(t, err)
	assert.True(t, closed)

	stored, err := repo.FindByNo(ctx, db, "T-2003")
	require.NoError(t, err)
	require.NotNil(t, stored.ExitAt)
	assert.Equal(t, hardwareExit, stored.ExitAt.UTC().Truncate(time.Second))
}
