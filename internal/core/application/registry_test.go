package application

import (
	"context"
	"testing"

	"github.com/parcelhq/parceld/internal/core/domain"
	"github.com/stretchr/testify/require"
)

func TestPropertyLifecycle(t *testing.T) {
	ctx := context.Background()

	t.Run("create_requires_registry_authority", func(t *testing.T) {
		env := newTestEnv(t)

		_, err := env.registry.CreateProperty(ctx, "alice", "alice", "Mill House", "Porto")
		require.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("ids_are_monotone_and_never_reused", func(t *testing.T) {
		env := newTestEnv(t)

		first, err := env.registry.CreateProperty(ctx, "registry", "alice", "Mill House", "Porto")
		require.NoError(t, err)
		require.NoError(t, env.registry.DeleteProperty(ctx, "registry", first.ID))

		second, err := env.registry.CreateProperty(ctx, "registry", "alice", "Shoreline", "Lisbon")
		require.NoError(t, err)
		require.Greater(t, second.ID, first.ID)
	})

	t.Run("verify_twice_fails", func(t *testing.T) {
		env := newTestEnv(t)
		info, err := env.registry.CreateProperty(ctx, "registry", "alice", "Mill House", "Porto")
		require.NoError(t, err)

		require.NoError(t, env.registry.Verify(ctx, "registry", info.ID))
		require.ErrorIs(t, env.registry.Verify(ctx, "registry", info.ID), domain.ErrInvalidState)
	})

	t.Run("unverify_requires_verified", func(t *testing.T) {
		env := newTestEnv(t)
		info, err := env.registry.CreateProperty(ctx, "registry", "alice", "Mill House", "Porto")
		require.NoError(t, err)

		require.ErrorIs(t, env.registry.Unverify(ctx, "registry", info.ID), domain.ErrInvalidState)

		require.NoError(t, env.registry.Verify(ctx, "registry", info.ID))
		require.NoError(t, env.registry.Unverify(ctx, "registry", info.ID))
	})

	t.Run("unverify_rejected_once_tokenized", func(t *testing.T) {
		env := newTestEnv(t)
		id := env.tokenizedProperty(t, "alice", units(100))

		require.ErrorIs(t, env.registry.Unverify(ctx, "registry", id), domain.ErrInvalidState)
	})

	t.Run("tokenize_requires_verified", func(t *testing.T) {
		env := newTestEnv(t)
		info, err := env.registry.CreateProperty(ctx, "registry", "alice", "Mill House", "Porto")
		require.NoError(t, err)

		err = env.registry.Tokenize(ctx, "registry", info.ID, units(100))
		require.ErrorIs(t, err, domain.ErrInvalidState)
	})

	t.Run("tokenize_mints_initial_issuance_to_owner", func(t *testing.T) {
		env := newTestEnv(t)
		id := env.tokenizedProperty(t, "alice", units(100))

		require.Equal(t, units(100), env.balance(t, id, "alice"))

		info, err := env.registry.GetProperty(ctx, id)
		require.NoError(t, err)
		require.True(t, info.Tokenized)
		require.Equal(t, units(100).Dec(), info.TotalIssued)
		require.Equal(t, 1, info.HolderCount)
	})

	t.Run("tokenize_twice_fails", func(t *testing.T) {
		env := newTestEnv(t)
		id := env.tokenizedProperty(t, "alice", units(100))

		require.ErrorIs(
			t, env.registry.Tokenize(ctx, "registry", id, units(100)), domain.ErrInvalidState,
		)
	})

	t.Run("tokenize_refuses_to_overwrite_an_existing_book", func(t *testing.T) {
		env := newTestEnv(t)
		info, err := env.registry.CreateProperty(ctx, "registry", "alice", "Mill House", "Porto")
		require.NoError(t, err)
		require.NoError(t, env.registry.Verify(ctx, "registry", info.ID))

		stray := domain.NewBook(info.ID)
		delta, err := stray.Mint("bob", units(1))
		require.NoError(t, err)
		require.NoError(t, env.repos.Books().Update(ctx, stray, delta))

		err = env.registry.Tokenize(ctx, "registry", info.ID, units(100))
		require.ErrorIs(t, err, domain.ErrAlreadySet)
	})

	t.Run("tokenize_resumes_after_a_failed_book_write", func(t *testing.T) {
		env := newTestEnv(t)
		info, err := env.registry.CreateProperty(ctx, "registry", "alice", "Mill House", "Porto")
		require.NoError(t, err)
		require.NoError(t, env.registry.Verify(ctx, "registry", info.ID))

		// flag committed, book write never landed
		property, err := env.repos.Properties().Get(ctx, info.ID)
		require.NoError(t, err)
		require.NoError(t, property.Tokenize())
		require.NoError(t, env.repos.Properties().Update(ctx, *property))

		require.NoError(t, env.registry.Tokenize(ctx, "registry", info.ID, units(100)))
		require.Equal(t, units(100), env.balance(t, info.ID, "alice"))
	})

	t.Run("unknown_property", func(t *testing.T) {
		env := newTestEnv(t)

		require.ErrorIs(t, env.registry.Verify(ctx, "registry", 42), domain.ErrNotFound)
		_, err := env.registry.GetProperty(ctx, 42)
		require.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestDeleteProperty(t *testing.T) {
	ctx := context.Background()

	t.Run("burns_all_outstanding_fractions", func(t *testing.T) {
		env := newTestEnv(t)
		id := env.tokenizedProperty(t, "alice", units(100))
		require.NoError(t, env.ledger.TransferHolding(ctx, "alice", id, "alice", "bob", units(40)))

		require.NoError(t, env.registry.DeleteProperty(ctx, "registry", id))

		_, err := env.ledger.BalanceOf(ctx, id, "alice")
		require.ErrorIs(t, err, domain.ErrNotFound)
		held, err := env.repos.books.HeldProperties(ctx, "bob")
		require.NoError(t, err)
		require.Empty(t, held)
	})

	t.Run("pays_accrued_income_to_owner", func(t *testing.T) {
		env := newTestEnv(t)
		id := env.tokenizedProperty(t, "alice", units(100))
		require.NoError(t, env.ledger.CreditIncome(ctx, "payout", id, units(12)))

		require.NoError(t, env.registry.DeleteProperty(ctx, "registry", id))

		require.Equal(t, units(12), env.cash(t, "alice"))
	})

	t.Run("deletion_is_terminal", func(t *testing.T) {
		env := newTestEnv(t)
		info, err := env.registry.CreateProperty(ctx, "registry", "alice", "Mill House", "Porto")
		require.NoError(t, err)
		require.NoError(t, env.registry.DeleteProperty(ctx, "registry", info.ID))

		require.ErrorIs(
			t, env.registry.DeleteProperty(ctx, "registry", info.ID), domain.ErrInvalidState,
		)
		require.ErrorIs(t, env.registry.Verify(ctx, "registry", info.ID), domain.ErrInvalidState)
	})

	t.Run("tolerates_a_book_removed_by_a_failed_delete", func(t *testing.T) {
		env := newTestEnv(t)
		id := env.tokenizedProperty(t, "alice", units(100))

		// book removal landed, property commit never did
		book, err := env.repos.Books().Get(ctx, id)
		require.NoError(t, err)
		require.NoError(t, env.repos.Books().Delete(ctx, id, book.BurnAll()))

		require.NoError(t, env.registry.DeleteProperty(ctx, "registry", id))

		info, err := env.registry.GetProperty(ctx, id)
		require.NoError(t, err)
		require.True(t, info.Deleted)
	})

	t.Run("rejected_while_listed_for_sale", func(t *testing.T) {
		env := newTestEnv(t)
		id := env.tokenizedProperty(t, "alice", units(100))
		env.listings.listed = true

		err := env.registry.DeleteProperty(ctx, "registry", id)
		require.ErrorIs(t, err, domain.ErrConflictingAgreement)

		info, err := env.registry.GetProperty(ctx, id)
		require.NoError(t, err)
		require.False(t, info.Deleted)
	})
}

func TestTransferOwnership(t *testing.T) {
	ctx := context.Background()

	t.Run("only_the_owner", func(t *testing.T) {
		env := newTestEnv(t)
		id := env.tokenizedProperty(t, "alice", units(100))

		err := env.registry.TransferOwnership(ctx, "bob", id, "bob")
		require.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("changes_owner", func(t *testing.T) {
		env := newTestEnv(t)
		id := env.tokenizedProperty(t, "alice", units(100))

		require.NoError(t, env.registry.TransferOwnership(ctx, "alice", id, "bob"))

		info, err := env.registry.GetProperty(ctx, id)
		require.NoError(t, err)
		require.Equal(t, "bob", info.Owner)
	})

	t.Run("notification_requires_a_collaborator_account", func(t *testing.T) {
		env := newTestEnv(t)
		id := env.tokenizedProperty(t, "alice", units(100))

		err := env.registry.NotifyOwnershipTransfer(ctx, "alice", id, "bob")
		require.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("notification_skips_the_conflict_guard", func(t *testing.T) {
		env := newTestEnv(t)
		id := env.tokenizedProperty(t, "alice", units(100))
		// the collaborator is reporting the resolution of the very listing
		// that would otherwise block the transfer
		env.listings.listed = true

		require.NoError(t, env.registry.NotifyOwnershipTransfer(ctx, "sale-svc", id, "bob"))

		info, err := env.registry.GetProperty(ctx, id)
		require.NoError(t, err)
		require.Equal(t, "bob", info.Owner)
	})

	t.Run("collaborator_failure_fails_closed", func(t *testing.T) {
		env := newTestEnv(t)
		id := env.tokenizedProperty(t, "alice", units(100))
		env.rentals.err = context.DeadlineExceeded

		err := env.registry.TransferOwnership(ctx, "alice", id, "bob")
		require.ErrorIs(t, err, domain.ErrConflictingAgreement)

		info, err := env.registry.GetProperty(ctx, id)
		require.NoError(t, err)
		require.Equal(t, "alice", info.Owner)
	})
}
