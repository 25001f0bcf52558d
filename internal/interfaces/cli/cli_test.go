package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/famcoin/backend/internal/domain/coin"
	"github.com/famcoin/backend/internal/infrastructure/config"
	"github.com/famcoin/backend/internal/infrastructure/kv/kvtest"
	"github.com/famcoin/backend/internal/infrastructure/retry"
	"github.com/famcoin/backend/internal/infrastructure/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 5, 2, 8, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

type cliFixture struct {
	app *App
}

func newCLIFixture(t *testing.T) *cliFixture {
	t.Helper()
	executor := retry.NewExecutor(retry.Config{MaxAttempts: 3, Policy: retry.RetryOnConflict})
	return &cliFixture{app: NewApp(kvtest.NewMemoryStore(t), executor, nil, nil, fixedClock)}
}

type cliResult struct {
	stdout string
	stderr string
	err    error
}

func (f *cliFixture) run(t *testing.T, args ...string) cliResult {
	t.Helper()
	root := NewRootCommand(func(context.Context, *RootOptions) (*App, error) {
		return f.app, nil
	})
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.Execute()
	return cliResult{stdout: stdout.String(), stderr: stderr.String(), err: err}
}

// decodeData unmarshals the data field of a JSON success response into v
func decodeData(t *testing.T, out string, v any) {
	t.Helper()
	var resp struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Equal(t, "ok", resp.Status)
	require.NoError(t, json.Unmarshal(resp.Data, v))
}

func (f *cliFixture) createCoinType(t *testing.T, name, daily string) coin.CoinType {
	t.Helper()
	res := f.run(t, "coin-type", "create", "--format", "json",
		"--family", "family-1", "--name", name, "--duration", "30", "--daily", daily)
	require.NoError(t, res.err)
	var ct coin.CoinType
	decodeData(t, res.stdout, &ct)
	return ct
}

func TestCLI_CoinLifecycle(t *testing.T) {
	f := newCLIFixture(t)
	ct := f.createCoinType(t, "  TV  ", "0")
	assert.Equal(t, "TV", ct.Name)
	assert.True(t, ct.Active)

	owner := []string{"--user", "user-1", "--family", "family-1", "--coin-type", ct.ID}

	res := f.run(t, append([]string{"coin", "open", "--amount", "50"}, owner...)...)
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "50 coins")

	res = f.run(t, append([]string{"coin", "increase", "--amount", "20", "--stamp-card", "card-1"}, owner...)...)
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "70 coins")

	res = f.run(t, append([]string{"coin", "spend", "--amount", "-15", "--session", "s-1"}, owner...)...)
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "55 coins")

	res = f.run(t, append([]string{"coin", "decrease", "--amount", "5", "--kind", "exchange",
		"--from-coin-type", ct.ID, "--to-coin-type", "games", "--rate", "0.5"}, owner...)...)
	require.NoError(t, res.err)

	res = f.run(t, append([]string{"coin", "balance", "--format", "json"}, owner...)...)
	require.NoError(t, res.err)
	var c coin.Coin
	decodeData(t, res.stdout, &c)
	assert.Equal(t, int64(50), c.Amount)

	res = f.run(t, append([]string{"coin", "history"}, owner...)...)
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "stamp_reward")
	assert.Contains(t, res.stdout, "+20  -> 70")
	assert.Contains(t, res.stdout, "-15  -> 55")
	assert.Contains(t, res.stdout, "exchange")
}

func TestCLI_BusinessErrors(t *testing.T) {
	f := newCLIFixture(t)
	owner := []string{"--user", "user-1", "--family", "family-1", "--coin-type", "tv"}
	require.NoError(t, f.run(t, append([]string{"coin", "open"}, owner...)...).err)

	t.Run("insufficient balance in text", func(t *testing.T) {
		res := f.run(t, append([]string{"coin", "spend", "--amount", "5"}, owner...)...)
		require.Error(t, res.err)
		assert.Equal(t, ExitFailure, GetExitCode(res.err))
		assert.Equal(t, "Error [INSUFFICIENT_BALANCE]: Insufficient coin balance. Current: 0, Required: 5\n", res.stderr)
		assert.Empty(t, res.stdout)
	})

	t.Run("missing coin in json", func(t *testing.T) {
		res := f.run(t, "coin", "balance", "--format", "json", "--user", "nobody", "--family", "family-1", "--coin-type", "tv")
		require.Error(t, res.err)
		assert.Equal(t, ExitFailure, GetExitCode(res.err))

		var resp CLIResponse
		require.NoError(t, json.Unmarshal([]byte(res.stdout), &resp))
		assert.Equal(t, "error", resp.Status)
		assert.Equal(t, "NOT_FOUND", resp.Error.Code)
	})

	t.Run("validation errors carry field details", func(t *testing.T) {
		res := f.run(t, "coin-type", "create", "--format", "json", "--family", "family-1", "--name", " ", "--duration", "0")
		require.Error(t, res.err)

		var resp struct {
			Error struct {
				Code    string `json:"code"`
				Details []struct {
					Field string `json:"field"`
				} `json:"details"`
			} `json:"error"`
		}
		require.NoError(t, json.Unmarshal([]byte(res.stdout), &resp))
		assert.Equal(t, "INVALID_INPUT", resp.Error.Code)
		require.Len(t, resp.Error.Details, 2)
		assert.Equal(t, "name", resp.Error.Details[0].Field)
		assert.Equal(t, "durationMinutes", resp.Error.Details[1].Field)
	})

	t.Run("unknown kind", func(t *testing.T) {
		res := f.run(t, append([]string{"coin", "increase", "--amount", "1", "--kind", "gift"}, owner...)...)
		require.Error(t, res.err)
		assert.Contains(t, res.stderr, "Error [INVALID_INPUT]")
	})
}

func TestCLI_CoinTypeUpdateOnlyChangedFlags(t *testing.T) {
	f := newCLIFixture(t)
	ct := f.createCoinType(t, "Games", "2")

	res := f.run(t, "coin-type", "update", ct.ID, "--family", "family-1", "--active=false", "--format", "json")
	require.NoError(t, res.err)
	var updated coin.CoinType
	decodeData(t, res.stdout, &updated)
	assert.False(t, updated.Active)
	assert.Equal(t, "Games", updated.Name)
	assert.Equal(t, int64(2), updated.DailyDistribution)
	assert.Equal(t, 30, updated.DurationMinutes)

	res = f.run(t, "coin-type", "update", ct.ID, "--family", "family-1")
	require.Error(t, res.err)
	assert.Contains(t, res.stderr, "must change at least one field")

	res = f.run(t, "coin-type", "list", "--family", "family-1")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "inactive")

	require.NoError(t, f.run(t, "coin-type", "delete", ct.ID, "--family", "family-1").err)
	require.NoError(t, f.run(t, "coin-type", "delete", ct.ID, "--family", "family-1").err)

	res = f.run(t, "coin-type", "get", ct.ID, "--family", "family-1")
	require.Error(t, res.err)
	assert.Contains(t, res.stderr, "Error [NOT_FOUND]")

	res = f.run(t, "ct", "list", "--family", "family-1")
	require.NoError(t, res.err)
	assert.Equal(t, "No coin types\n", res.stdout)
}

func TestCLI_Distribute(t *testing.T) {
	f := newCLIFixture(t)
	tv := f.createCoinType(t, "TV", "3")
	f.createCoinType(t, "Manual", "0")

	res := f.run(t, "distribute", "--family", "family-1", "--user", "user-1", "--timezone", "Asia/Tokyo")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "Distributed 3 coins to user-1 for 2026-05-02")
	assert.Contains(t, res.stdout, tv.ID+": 3")

	res = f.run(t, "distribute", "--family", "family-1", "--user", "user-1", "--date", "2026-05-02", "--timezone", "Asia/Tokyo")
	require.Error(t, res.err)
	assert.Equal(t, ExitFailure, GetExitCode(res.err))
	assert.Contains(t, res.stderr, "Error [ALREADY_EXISTS]")

	res = f.run(t, "distribute", "--family", "family-1", "--user", "user-1", "--date", "2026-05-03", "--format", "json")
	require.NoError(t, res.err)
	var result struct {
		Record   coin.DailyCoinDistribution `json:"record"`
		Balances []coin.Coin                `json:"balances"`
	}
	decodeData(t, res.stdout, &result)
	assert.Equal(t, "2026-05-03", result.Record.SummaryDate)
	require.Len(t, result.Balances, 1)
	assert.Equal(t, int64(6), result.Balances[0].Amount)
}

func TestCLI_GlobalFailures(t *testing.T) {
	t.Run("invalid format", func(t *testing.T) {
		f := newCLIFixture(t)
		res := f.run(t, "coin-type", "list", "--format", "yaml")
		require.Error(t, res.err)
		var exitErr *ExitError
		assert.False(t, errors.As(res.err, &exitErr))
		assert.Contains(t, res.err.Error(), `invalid format "yaml"`)
	})

	t.Run("startup failure", func(t *testing.T) {
		root := NewRootCommand(func(context.Context, *RootOptions) (*App, error) {
			return nil, errors.New("store.driver must be one of memory, leveldb, redis, sqlite, postgres")
		})
		var stderr bytes.Buffer
		root.SetOut(&bytes.Buffer{})
		root.SetErr(&stderr)
		root.SetArgs([]string{"coin-type", "list", "--family", "f"})

		err := root.Execute()
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
		assert.Contains(t, stderr.String(), "Error [INTERNAL]: store.driver")
	})
}

func TestDetailFlags(t *testing.T) {
	tests := []struct {
		name    string
		flags   detailFlags
		want    coin.TransactionDetail
		wantErr bool
	}{
		{"daily", detailFlags{Kind: "daily_distribution", SummaryDate: "2026-05-02"}, coin.DailyDistributionDetail{SummaryDate: "2026-05-02"}, false},
		{"use", detailFlags{Kind: "use", TimeSessionID: "s"}, coin.UseDetail{TimeSessionID: "s"}, false},
		{"stamp", detailFlags{Kind: "stamp_reward", StampCardID: "c"}, coin.StampRewardDetail{StampCardID: "c"}, false},
		{"bad rate", detailFlags{Kind: "exchange", Rate: "fast"}, nil, true},
		{"unknown", detailFlags{Kind: "gift"}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.flags.detail()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
	assert.Equal(t, ExitCommandError, GetExitCode(WrapExitError(ExitCommandError, "boom", nil)))
	assert.Equal(t, "boom: inner", WrapExitError(ExitFailure, "boom", errors.New("inner")).Error())
}

func TestCLI_ScheduleOnce(t *testing.T) {
	f := newCLIFixture(t)
	f.createCoinType(t, "TV", "3")
	f.app.Schedule = config.SchedulerConfig{
		Workers: 2,
		Members: []config.MemberConfig{{Family: "family-1", User: "alice", Timezone: "Asia/Tokyo"}},
	}

	res := f.run(t, "schedule", "--once", "--member", "family-1:bob")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "SUCCESS  family-1:alice")
	assert.Contains(t, res.stdout, "SUCCESS  family-1:bob")

	res = f.run(t, "schedule", "--once", "--member", "family-1:bob", "--format", "json")
	require.NoError(t, res.err)
	var jobs []scheduler.Job
	decodeData(t, res.stdout, &jobs)
	require.Len(t, jobs, 2)
	for _, j := range jobs {
		assert.Equal(t, scheduler.JobStatusSkipped, j.Status)
	}

	res = f.run(t, "coin", "history", "--user", "alice", "--family", "family-1", "--coin-type", f.firstCoinTypeID(t))
	require.NoError(t, res.err)
	assert.Equal(t, 1, strings.Count(res.stdout, "daily_distribution"))
}

func TestCLI_ScheduleOnceFailures(t *testing.T) {
	f := newCLIFixture(t)

	res := f.run(t, "schedule", "--once", "--member", "family-1")
	require.Error(t, res.err)
	assert.Equal(t, ExitFailure, GetExitCode(res.err))
	assert.Contains(t, res.stderr, "Error [INVALID_INPUT]")

	res = f.run(t, "schedule", "--once", "--member", "family-1:bob:Mars/Olympus")
	require.Error(t, res.err)
	assert.Equal(t, ExitCommandError, GetExitCode(res.err))
	assert.Contains(t, res.stdout, "FAILED   family-1:bob")
	assert.Contains(t, res.stderr, "1 of 1 distributions failed")

	res = f.run(t, "schedule", "--once")
	require.NoError(t, res.err)
	assert.Equal(t, "No members to distribute to\n", res.stdout)
}

func (f *cliFixture) firstCoinTypeID(t *testing.T) string {
	t.Helper()
	types, err := f.app.CoinTypes.List(context.Background(), "family-1")
	require.NoError(t, err)
	require.NotEmpty(t, types)
	return types[0].ID
}
