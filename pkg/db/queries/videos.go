package queries

import (
	"fmt"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/askdoubt/manim-tutor-api/pkg/db"
)

// CreateVideo records a successful render.
func (s *Store) CreateVideo(video *db.Video) (*db.Video, error) {
	query := `
		INSERT INTO videos (user_id, question, filename, video_url, duration)
		VALUES (:user_id, :question, :filename, :video_url, :duration)
		RETURNING id, created_at`

	rows, err := s.db.NamedQuery(query, video)
	if err != nil {
		log.Errorf("Error creating video record: %v", err)
		return nil, fmt.Errorf("failed to create video record: %w", err)
	}
	defer rows.Close()

	if rows.Next() {
		if err := rows.StructScan(video); err != nil {
			log.Errorf("Error scanning video record after creation: %v", err)
			return nil, fmt.Errorf("error scanning video record after creation: %w", err)
		}
	} else {
		log.Error("No rows returned after video record creation.")
		return nil, fmt.Errorf("no rows returned after video record creation")
	}

	log.Infof("Video record '%s' created (ID: %s)", video.Filename, video.ID.String())
	return video, nil
}

// FindVideosByUserID lists a user's renders, newest first.
func (s *Store) FindVideosByUserID(userID uuid.UUID) ([]db.Video, error) {
	var videos []db.Video
	query := `SELECT id, user_id, question, filename, video_url, duration, created_at
		FROM videos WHERE user_id = $1 ORDER BY created_at DESC`
	if err := s.db.Select(&videos, query, userID); err != nil {
		log.Errorf("Error finding videos for user ID '%s': %v", userID.String(), err)
		return nil, fmt.Errorf("error finding videos by user ID: %w", err)
	}
	return videos, nil
}

// Stats aggregates the numbers the admin dashboard shows.
type Stats struct {
	TotalUsers       int `db:"total_users" json:"total_users"`
	VerifiedUsers    int `db:"verified_users" json:"verified_users"`
	WaitlistCount    int `db:"waitlist_count" json:"waitlist_count"`
	TotalVideos      int `db:"total_videos" json:"total_videos"`
	CreditsRemaining int `db:"credits_remaining" json:"credits_remaining"`
}

func (s *Store) GetStats() (*Stats, error) {
	stats := &Stats{}
	query := `
		SELECT
			(SELECT COUNT(*) FROM users) AS total_users,
			(SELECT COUNT(*) FROM users WHERE is_verified) AS verified_users,
			(SELECT COUNT(*) FROM waitlist) AS waitlist_count,
			(SELECT COUNT(*) FROM videos) AS total_videos,
			(SELECT COALESCE(SUM(credits), 0) FROM users) AS credits_remaining`
	if err := s.db.Get(stats, query); err != nil {
		log.Errorf("Error aggregating stats: %v", err)
		return nil, fmt.Errorf("error aggregating stats: %w", err)
	}
	return stats, nil
}
