package workers

import (
	"context"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// StartTrialExpiryWorker starts a background routine that flips stale PENDING
// trials to EXPIRED. The read paths already expire lazily; the sweeper keeps
// rows honest for customers who never come back to look.
func StartTrialExpiryWorker(db *pgxpool.Pool) {
	ticker := time.NewTicker(1 * time.Hour)

	go func() {
		for range ticker.C {
			expireStaleTrials(db)
		}
	}()
}

func expireStaleTrials(db *pgxpool.Pool) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	query := `
		UPDATE trial_boxes
		SET status = 'EXPIRED', updated_at = now()
		WHERE status = 'PENDING' AND expires_at < now()
	`

	tag, err := db.Exec(ctx, query)
	if err != nil {
		log.Printf("Trial expiry sweep failed: %v", err)
		return
	}

	if tag.RowsAffected() > 0 {
		log.Printf("Trial expiry sweep: expired %d stale trials", tag.RowsAffected())
	}
}
