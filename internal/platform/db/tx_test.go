package db

import (
	"context"
	"testing"
)

func TestTxFromContext_Nil(t *testing.T) {
	tx := TxFromContext(context.Background())
	if tx != nil {
		t.Error("expected nil tx from empty context")
	}
}

func TestTxFromContext_WithWrongType(t *testing.T) {
	ctx := context.WithValue(context.Background(), DBTxKey, "not-a-tx")
	tx := TxFromContext(ctx)
	if tx != nil {
		t.Error("expected nil tx when context value has wrong type")
	}
}

func TestConn_FallsBackToPool(t *testing.T) {
	q := Conn(context.Background(), nil)
	if q == nil {
		t.Fatal("expected a Queryable even without a transaction")
	}
}
