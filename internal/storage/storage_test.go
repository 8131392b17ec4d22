package storage

import (
	"context"
	"database/sql/driver"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ethereum/go-ethereum/common"
	json "github.com/goccy/go-json"
	"github.com/mselser95/lmsr-amm/internal/engine"
	"github.com/mselser95/lmsr-amm/internal/market"
	"github.com/mselser95/lmsr-amm/pkg/wad"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	t0     = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	sender = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
)

func buyEntry(seq uint64) Entry {
	return Entry{
		Seq: seq,
		At:  t0.Add(time.Duration(seq) * time.Minute),
		Tx: engine.Tx{
			ID:       "tx-" + big.NewInt(int64(seq)).String(),
			Op:       engine.OpBuy,
			Sender:   sender,
			MarketID: "m-1",
			Outcome:  market.OutcomeYes,
			Amount:   new(big.Int).Mul(big.NewInt(10), big.NewInt(1e18)),
			Limit:    new(big.Int).Mul(big.NewInt(6), big.NewInt(1e18)),
		},
	}
}

func TestMemoryJournal_AppendAndLoad(t *testing.T) {
	j := NewMemoryJournal(zap.NewNop())
	ctx := context.Background()

	require.NoError(t, j.Append(ctx, buyEntry(1)))
	require.NoError(t, j.Append(ctx, buyEntry(2)))

	entries, err := j.Load(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, uint64(1), entries[0].Seq)
	assert.Equal(t, "tx-2", entries[1].Tx.ID)
	assert.Equal(t, 2, j.Len())

	// Load returns a copy.
	entries[0].Seq = 99
	again, err := j.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), again[0].Seq)

	assert.NoError(t, j.Close())
}

func TestMemoryJournal_RejectsOutOfOrder(t *testing.T) {
	tests := []struct {
		name string
		seqs []uint64
	}{
		{name: "starts at two", seqs: []uint64{2}},
		{name: "duplicate", seqs: []uint64{1, 1}},
		{name: "gap", seqs: []uint64{1, 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := NewMemoryJournal(zap.NewNop())
			var err error
			for _, s := range tt.seqs {
				err = j.Append(context.Background(), buyEntry(s))
			}
			assert.True(t, errors.Is(err, ErrOutOfOrder))
		})
	}
}

func TestPostgresJournal_Append(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	j := &PostgresJournal{db: db, logger: zap.NewNop()}
	e := buyEntry(1)

	mock.ExpectExec("INSERT INTO amm_journal").
		WithArgs(
			int64(1),
			"tx-1",
			"buy",
			"m-1",
			sender.Hex(),
			sqlmock.AnyArg(), // applied_at
			e.At.UnixNano(),
			sqlmock.AnyArg(), // payload
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = j.Append(context.Background(), e)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresJournal_Append_Error(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	j := &PostgresJournal{db: db, logger: zap.NewNop()}

	mock.ExpectExec("INSERT INTO amm_journal").
		WillReturnError(sqlmock.ErrCancelled)

	err = j.Append(context.Background(), buyEntry(1))
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresJournal_Load(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	j := &PostgresJournal{db: db, logger: zap.NewNop()}

	first, second := buyEntry(1), buyEntry(2)
	p1, err := json.Marshal(first.Tx)
	require.NoError(t, err)
	p2, err := json.Marshal(second.Tx)
	require.NoError(t, err)

	rows := sqlmock.NewRows([]string{"seq", "applied_ns", "payload"}).
		AddRow(int64(1), first.At.UnixNano(), p1).
		AddRow(int64(2), second.At.UnixNano(), p2)
	mock.ExpectQuery("SELECT seq, applied_ns, payload FROM amm_journal").WillReturnRows(rows)

	entries, err := j.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)

	got := entries[1]
	assert.Equal(t, uint64(2), got.Seq)
	assert.True(t, got.At.Equal(second.At))
	assert.Equal(t, engine.OpBuy, got.Tx.Op)
	assert.Equal(t, sender, got.Tx.Sender)
	assert.Equal(t, market.OutcomeYes, got.Tx.Outcome)
	assert.Equal(t, 0, got.Tx.Amount.Cmp(second.Tx.Amount))
	assert.Equal(t, 0, got.Tx.Limit.Cmp(second.Tx.Limit))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// captured records the value the driver received for one placeholder.
type captured struct {
	v driver.Value
}

func (c *captured) Match(v driver.Value) bool {
	c.v = v
	return true
}

func TestPostgresJournal_ReplayKeepsNanoseconds(t *testing.T) {
	var (
		creator = common.HexToAddress("0xc0ffee")
		alice   = common.HexToAddress("0xa11ce")
		expiry  = t0.Add(48 * time.Hour)
		settled = expiry.Add(time.Hour + 900*time.Nanosecond)
	)

	// The dispute lands 400ns before its deadline; rounding times to
	// microseconds would close the window.
	live := []Entry{
		{At: t0.Add(123), Tx: engine.Tx{ID: "dep-c", Op: engine.OpDeposit, Sender: creator, Amount: wad.FromInt(1000)}},
		{At: t0.Add(1001), Tx: engine.Tx{ID: "dep-a", Op: engine.OpDeposit, Sender: alice, Amount: wad.FromInt(1000)}},
		{At: t0.Add(2007), Tx: engine.Tx{
			ID: "create", Op: engine.OpCreateMarket, Sender: creator, MarketID: "m-1",
			Amount: wad.FromInt(100), ExpiresAt: expiry,
		}},
		{At: t0.Add(time.Hour + 999), Tx: engine.Tx{
			ID: "buy", Op: engine.OpBuy, Sender: alice, MarketID: "m-1",
			Outcome: market.OutcomeYes, Amount: wad.FromInt(10),
		}},
		{At: settled, Tx: engine.Tx{
			ID: "settle", Op: engine.OpSettleMarket, Sender: creator, MarketID: "m-1",
			Outcome: market.OutcomeYes,
		}},
		{At: settled.Add(24*time.Hour - 400*time.Nanosecond), Tx: engine.Tx{
			ID: "dispute", Op: engine.OpDispute, Sender: alice, MarketID: "m-1",
			Outcome: market.OutcomeNo, Amount: wad.FromInt(10),
		}},
	}

	newLedger := func() *engine.Engine {
		cfg := engine.DefaultConfig()
		cfg.AllowDeposits = true
		e, err := engine.New(&cfg)
		require.NoError(t, err)
		return e
	}

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	j := &PostgresJournal{db: db, logger: zap.NewNop()}

	liveEngine := newLedger()
	rows := sqlmock.NewRows([]string{"seq", "applied_ns", "payload"})
	stored := make([][3]*captured, len(live))
	for i := range live {
		live[i].Seq = uint64(i + 1)
		_, err = liveEngine.Apply(live[i].Tx, live[i].At)
		require.NoError(t, err, live[i].Tx.ID)

		seq, nanos, payload := &captured{}, &captured{}, &captured{}
		stored[i] = [3]*captured{seq, nanos, payload}
		mock.ExpectExec("INSERT INTO amm_journal").
			WithArgs(seq, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
				sqlmock.AnyArg(), sqlmock.AnyArg(), nanos, payload).
			WillReturnResult(sqlmock.NewResult(1, 1))
		require.NoError(t, j.Append(context.Background(), live[i]))
	}
	for _, c := range stored {
		rows.AddRow(c[0].v, c[1].v, c[2].v)
	}
	mock.ExpectQuery("SELECT seq, applied_ns, payload FROM amm_journal").WillReturnRows(rows)

	entries, err := j.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, len(live))

	replayed := newLedger()
	for i, e := range entries {
		assert.True(t, e.At.Equal(live[i].At), "entry %d at %s, want %s", e.Seq, e.At, live[i].At)
		_, err = replayed.Apply(e.Tx, e.At)
		require.NoError(t, err, e.Tx.ID)
	}

	want, err := liveEngine.StateDigest()
	require.NoError(t, err)
	got, err := replayed.StateDigest()
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresJournal_LoadDetectsGap(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	j := &PostgresJournal{db: db, logger: zap.NewNop()}

	p, err := json.Marshal(buyEntry(3).Tx)
	require.NoError(t, err)
	rows := sqlmock.NewRows([]string{"seq", "applied_ns", "payload"}).
		AddRow(int64(3), t0.UnixNano(), p)
	mock.ExpectQuery("SELECT seq, applied_ns, payload FROM amm_journal").WillReturnRows(rows)

	_, err = j.Load(context.Background())
	assert.True(t, errors.Is(err, ErrOutOfOrder))
}

func TestPostgresJournal_EnsureSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	j := &PostgresJournal{db: db, logger: zap.NewNop()}

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS amm_journal").
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.NoError(t, j.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresJournal_Close(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	j := &PostgresJournal{db: db, logger: zap.NewNop()}
	mock.ExpectClose()

	assert.NoError(t, j.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewPostgresJournal_ConnectionSuccess(t *testing.T) {
	t.Skip("Requires actual PostgreSQL database")

	j, err := NewPostgresJournal(context.Background(), &PostgresConfig{
		Host:     "localhost",
		Port:     "5432",
		User:     "test",
		Password: "test",
		Database: "test_db",
		SSLMode:  "disable",
		Logger:   zap.NewNop(),
	})
	require.NoError(t, err)
	defer j.Close()
}

func TestJournal_Interface(t *testing.T) {
	db, _, _ := sqlmock.New()
	defer db.Close()

	var _ Journal = NewMemoryJournal(zap.NewNop())
	var _ Journal = &PostgresJournal{db: db, logger: zap.NewNop()}
}
