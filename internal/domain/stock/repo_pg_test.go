package stock

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/careledger/careledger/internal/platform/apperr"
)

func TestMovementInsertErr(t *testing.T) {
	id := uuid.New()

	if err := movementInsertErr(&pgconn.PgError{Code: "23503"}, id); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("foreign key violation: got %v, want not found", err)
	}
	if err := movementInsertErr(&pgconn.PgError{Code: "23505"}, id); !apperr.Is(err, apperr.KindConflict) {
		t.Errorf("unique violation: got %v, want conflict", err)
	}
	plain := errors.New("connection reset")
	if err := movementInsertErr(plain, id); err != plain {
		t.Errorf("unrelated error: got %v, want it passed through", err)
	}
	if err := movementInsertErr(nil, id); err != nil {
		t.Errorf("nil error: got %v, want nil", err)
	}
}
