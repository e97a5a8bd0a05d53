package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rabbitmq/amqp091-go"

	"github.com/strataline/alignd/internal/storage"
	"github.com/strataline/alignd/internal/util"
	"github.com/strataline/alignd/pkg/leaselock"
	"github.com/strataline/alignd/pkg/logger"
	"github.com/strataline/alignd/pkg/oracle"
	"github.com/strataline/alignd/pkg/pipeline"
)

type sessionEvent struct {
	SessionID  string `json:"session_id"`
	Status     string `json:"status"`
	LayersDone int    `json:"layers_done"`
	Error      string `json:"error,omitempty"`
}

type oracleLogDocument struct {
	Entries []oracle.CallEntry `json:"entries"`
	Stats   oracle.Stats       `json:"stats"`
}

// ProcessAnalyzeMessage runs the full four-layer analysis for one session
// and persists the outcome. A returned error sends the message through the
// retry path; the session row is marked failed either way so the API shows
// the latest state.
func ProcessAnalyzeMessage(
	ctx context.Context,
	oracleClient oracle.Client,
	ch *amqp091.Channel,
	conn *pgxpool.Pool,
	msg string,
) error {
	data := new(AnalyzeSessionMsg)
	if err := json.Unmarshal([]byte(msg), data); err != nil {
		return fmt.Errorf("unmarshal analyze message: %w", err)
	}
	if data.SessionID == "" {
		return fmt.Errorf("analyze message without session_id")
	}

	// A redelivered message must not start a second run of the same
	// session while the first is still going.
	lockClient := leaselock.New(conn)
	lease, err := lockClient.Acquire(ctx, "session:"+data.SessionID, leaselock.Options{
		TTL:         30 * time.Minute,
		RenewEvery:  10 * time.Minute,
		TokenPrefix: "analyze/" + data.SessionID + "/",
	})
	if err != nil {
		if errors.Is(err, leaselock.ErrBusy) {
			logger.Warn("[Queue] Session already being analyzed, skipping", "session_id", data.SessionID)
			return nil
		}
		return fmt.Errorf("acquire session lease: %w", err)
	}
	defer func() {
		if err := lease.Release(context.Background()); err != nil {
			logger.Warn("[Queue] Failed to release session lease", "session_id", data.SessionID, "err", err)
		}
	}()

	store := storage.NewSessionStore(conn)
	if err := store.MarkRunning(ctx, data.SessionID); err != nil {
		return fmt.Errorf("mark session running: %w", err)
	}

	model := data.Model
	if model == "" {
		model = util.GetEnv("ORACLE_MODEL")
	}

	sess, err := pipeline.NewSession(pipeline.Params{
		ID:     data.SessionID,
		Oracle: oracle.NewCachedClient(oracleClient),
		Model:  model,
	})
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	logger.Info("[Queue] Starting analysis", "session_id", sess.ID, "model", model)

	if runErr := sess.Run(ctx, data.StrategicText, data.ActionText); runErr != nil {
		if err := store.MarkFailed(ctx, sess.ID, sess.LayersDone(), runErr.Error()); err != nil {
			logger.Error("[Queue] Failed to mark session failed", "session_id", sess.ID, "err", err)
		}
		publishEvent(ch, "session.failed", sessionEvent{
			SessionID:  sess.ID,
			Status:     storage.StatusFailed,
			LayersDone: sess.LayersDone(),
			Error:      runErr.Error(),
		})
		return runErr
	}

	snapshots := make([]storage.StoredSnapshot, 0, 5)
	for _, sn := range sess.Tracker.Snapshots() {
		snapshots = append(snapshots, storage.StoredSnapshot{
			Snapshot:        sn,
			SerializedGraph: sn.Serialized,
		})
	}

	saveErr := util.RetryErrWithContext(ctx, 3, func(ctx context.Context) error {
		return store.SaveResults(ctx, storage.SaveResultsParams{
			ID:          sess.ID,
			LayersDone:  sess.LayersDone(),
			Results:     sess.Results,
			Snapshots:   snapshots,
			Validations: sess.Tracker.Validations(),
			OracleLog: oracleLogDocument{
				Entries: sess.Log.Entries(),
				Stats:   sess.Log.Stats(),
			},
			GraphText: sess.Graph.Serialize(),
		})
	})
	if saveErr != nil {
		return fmt.Errorf("save session results: %w", saveErr)
	}

	publishEvent(ch, "session.complete", sessionEvent{
		SessionID:  sess.ID,
		Status:     storage.StatusComplete,
		LayersDone: sess.LayersDone(),
	})

	logger.Info("[Queue] Analysis complete", "session_id", sess.ID, "layers", sess.LayersDone())
	return nil
}

func publishEvent(ch *amqp091.Channel, topic string, event sessionEvent) {
	body, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err := PublishTopic(ch, topic, body); err != nil {
		logger.Warn("[Queue] Failed to publish event", "topic", topic, "err", err)
	}
}
