package gate_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	auditdomain "github.com/programador11r-tec/zkt-sub000/internal/audit/domain"
	auditrepo "github.com/programador11r-tec/zkt-sub000/internal/audit/repository"
	auditservice "github.com/programador11r-tec/zkt-sub000/internal/audit/service"
	"github.com/programador11r-tec/zkt-sub000/internal/config"
	"github.com/programador11r-tec/zkt-sub000/internal/gate"
	gatedomain "github.com/programador11r-tec/zkt-sub000/internal/gate/domain"
	gaterepo "github.com/programador11r-tec/zkt-sub000/internal/gate/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type scriptedNotify struct {
	outcome gatedomain.NotifyOutcome
	err     error
}

type scriptedController struct {
	notifies    []scriptedNotify
	notifyCalls int

	openResult   gatedomain.OpenResult
	openErr      error
	openChannels []string
}

func (c *scriptedController) PayNotify(_ context.Context, _, _, _ string) (gatedomain.NotifyOutcome, error) {
	if c.notifyCalls >= len(c.notifies) {
		return gatedomain.NotifyOutcome{}, errors.New("unexpected notify call")
	}
	step := c.notifies[c.notifyCalls]
	c.notifyCalls++
	return step.outcome, step.err
}

func (c *scriptedController) OpenChannel(_ context.Context, channelID string) (gatedomain.OpenResult, error) {
	c.openChannels = append(c.openChannels, channelID)
	return c.openResult, c.openErr
}

func ackedNotify() scriptedNotify {
	return scriptedNotify{outcome: gatedomain.NotifyOutcome{
		Endpoint:   "http://gate.local/api/pay/notify",
		HTTPStatus: 200,
		AckCode:    "0",
		Raw:        []byte(`{"code":"0"}`),
	}}
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:gatedb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&gatedomain.ManualOpenLog{}, &auditdomain.AuditLog{}))
	return db
}

func newService(t *testing.T, db *gorm.DB, controller gatedomain.Controller) (gatedomain.Service, auditdomain.Service) {
	t.Helper()

	node, err := snowflake.NewNode(3)
	require.NoError(t, err)

	audit := auditservice.NewService(auditservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  auditrepo.Provide(),
	})

	cfg := config.Config{Gate: config.GateConfig{
		BaseURL:       "http://gate.local",
		ExitChannelID: "1",
		PaymentType:   "cash",
	}}
	holder := config.NewStaticParkingConfigHolder(config.DefaultParkingConfig())

	svc := gate.NewService(gate.Params{
		DB:         db,
		Log:        zap.NewNop(),
		GenID:      node,
		Cfg:        cfg,
		Parking:    holder,
		Controller: controller,
		Repo:       gaterepo.Provide(),
		Audit:      audit,
	})
	return svc, audit
}

func TestNotifyPaidRunsReinforcementAttemptsAfterAck(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	ctrl := &scriptedController{notifies: []scriptedNotify{ackedNotify(), ackedNotify(), ackedNotify()}}
	svc, audit := newService(t, db, ctrl)

	result, err := svc.NotifyPaid(ctx, "P123ABC", "T-0001")
	require.NoError(t, err)

	assert.True(t, result.Sent)
	assert.True(t, result.Acknowledged)
	assert.False(t, result.ManualOpenRequired)
	assert.Equal(t, 200, result.HTTPStatus)
	assert.Len(t, result.Attempts, 3)
	assert.Equal(t, 3, ctrl.notifyCalls)

	logs, err := audit.List(ctx, auditdomain.ListRequest{Action: "gate.notify_attempt"})
	require.NoError(t, err)
	assert.Len(t, logs, 3)
}

func TestNotifyPaidStopsWhenFirstAttemptNotSent(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	ctrl := &scriptedController{notifies: []scriptedNotify{
		{err: errors.New("dial tcp: connection refused")},
	}}
	svc, _ := newService(t, db, ctrl)

	result, err := svc.NotifyPaid(ctx, "P123ABC", "T-0002")
	require.NoError(t, err)

	assert.False(t, result.Sent)
	assert.False(t, result.Acknowledged)
	assert.True(t, result.ManualOpenRequired)
	assert.Contains(t, result.Error, "connection refused")
	assert.Len(t, result.Attempts, 1)
	assert.Equal(t, 1, ctrl.notifyCalls)
}

func TestNotifyPaidStopsWhenFirstAttemptUnacknowledged(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	ctrl := &scriptedController{notifies: []scriptedNotify{
		{outcome: gatedomain.NotifyOutcome{HTTPStatus: 200, AckCode: "err_record_not_found"}},
	}}
	svc, _ := newService(t, db, ctrl)

	result, err := svc.NotifyPaid(ctx, "P123ABC", "T-0003")
	require.NoError(t, err)

	assert.True(t, result.Sent)
	assert.False(t, result.Acknowledged)
	assert.True(t, result.ManualOpenRequired)
	assert.Len(t, result.Attempts, 1)
}

func TestNotifyPaidLaterFailureDoesNotChangeResult(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	ctrl := &scriptedController{notifies: []scriptedNotify{
		ackedNotify(),
		{err: errors.New("read timeout")},
	}}
	svc, _ := newService(t, db, ctrl)

	result, err := svc.NotifyPaid(ctx, "P123ABC", "T-0004")
	require.NoError(t, err)

	// Attempt 1 succeeded, so its outcome stands even though the
	// reinforcement attempt failed; no third attempt runs.
	assert.True(t, result.Sent)
	assert.True(t, result.Acknowledged)
	assert.False(t, result.ManualOpenRequired)
	assert.Empty(t, result.Error)
	assert.Len(t, result.Attempts, 2)
	assert.Equal(t, 2, ctrl.notifyCalls)
}

func TestNotifyPaidThirdAttemptNeedsSecondSuccess(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	ctrl := &scriptedController{notifies: []scriptedNotify{
		ackedNotify(),
		{outcome: gatedomain.NotifyOutcome{HTTPStatus: 200, AckCode: "busy"}},
	}}
	svc, _ := newService(t, db, ctrl)

	result, err := svc.NotifyPaid(ctx, "P123ABC", "T-0005")
	require.NoError(t, err)

	assert.True(t, result.Acknowledged)
	assert.False(t, result.ManualOpenRequired)
	assert.Len(t, result.Attempts, 2)
	assert.False(t, result.Attempts[1].Acknowledged)
}

func TestOpenGateRecordsManualOpen(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	ctrl := &scriptedController{openResult: gatedomain.OpenResult{
		OK:         true,
		HTTPStatus: 200,
		Code:       "0",
		Message:    "opened",
	}}
	svc, _ := newService(t, db, ctrl)

	entry, err := svc.OpenGate(ctx, "", gatedomain.ReasonGrace)
	require.NoError(t, err)

	assert.Equal(t, "1", entry.ChannelID)
	assert.Equal(t, gatedomain.ReasonGrace, entry.Reason)
	assert.Equal(t, []string{"1"}, ctrl.openChannels)

	listed, err := svc.ListManualOpens(ctx, 10)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "0", listed[0].ResultCode)
}

func TestOpenGateControllerErrorStillRecorded(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	ctrl := &scriptedController{openErr: errors.New("gate unreachable")}
	svc, _ := newService(t, db, ctrl)

	_, err := svc.OpenGate(ctx, "2", gatedomain.ReasonOperator)
	require.Error(t, err)

	listed, listErr := svc.ListManualOpens(ctx, 10)
	require.NoError(t, listErr)
	require.Len(t, listed, 1)
	assert.Equal(t, "2", listed[0].ChannelID)
	assert.Equal(t, "gate unreachable", listed[0].ResultMessage)
}
