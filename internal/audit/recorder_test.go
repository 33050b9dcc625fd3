package audit

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farellandr/ucshop/internal/logger"
	"github.com/farellandr/ucshop/internal/models"
	"github.com/farellandr/ucshop/internal/testutil"
)

func TestGormRecorderRecord(t *testing.T) {
	db := testutil.NewDB(t)
	rec := NewGormRecorder(db, logger.NewTestLogger())
	actor := uuid.New()
	orderID := uuid.NewString()

	require.NoError(t, rec.Record(context.Background(), Entry{
		Action:     ActionOrderRefunded,
		ActorID:    &actor,
		EntityType: "order",
		EntityID:   orderID,
		Meta:       map[string]interface{}{"reason": "dispute"},
	}))

	var row models.AuditLog
	require.NoError(t, db.First(&row, "entity_id = ?", orderID).Error)
	assert.Equal(t, ActionOrderRefunded, row.Action)
	require.NotNil(t, row.ActorID)
	assert.Equal(t, actor, *row.ActorID)

	var meta map[string]string
	require.NoError(t, json.Unmarshal(row.Meta, &meta))
	assert.Equal(t, "dispute", meta["reason"])
}

func TestGormRecorderRecordSecurity(t *testing.T) {
	db := testutil.NewDB(t)
	rec := NewGormRecorder(db, logger.NewTestLogger())

	require.NoError(t, rec.RecordSecurity(context.Background(), SecurityEvent{
		Event:    EventInvalidSignature,
		SourceIP: "203.0.113.9",
		OrderID:  "order-1",
		Payload:  map[string]string{"hash": "deadbeef"},
	}))

	var row models.SecurityLog
	require.NoError(t, db.First(&row).Error)
	assert.Equal(t, EventInvalidSignature, row.Event)
	assert.Equal(t, "203.0.113.9", row.SourceIP)
	assert.Contains(t, string(row.Payload), "deadbeef")
}
