package services

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"timetable_go/models"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	auditQueueKey  = "audit:queue"
	auditKeyPrefix = "audit:entry:"
	auditCacheTTL  = 72 * time.Hour
	recentCapacity = 200
)

// AuditService keeps the trail of timetable mutations. Entries are queued in
// Redis when available and flushed to the database on a schedule; without
// Redis they go straight to the database; without either they are only kept
// in memory.
type AuditService struct {
	db          *gorm.DB
	redisClient *redis.Client
	uploader    ObjectUploader

	mu     sync.Mutex
	recent []models.AuditEntry
}

func NewAuditService(db *gorm.DB, redisClient *redis.Client) *AuditService {
	return &AuditService{db: db, redisClient: redisClient}
}

// SetUploader enables ArchiveOld.
func (s *AuditService) SetUploader(u ObjectUploader) {
	s.uploader = u
}

// Record stores entry. Failures are logged, never returned: the mutation it
// describes has already been committed.
func (s *AuditService) Record(ctx context.Context, entry models.AuditEntry) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.remember(entry)

	if s.redisClient != nil {
		err := s.enqueue(ctx, entry)
		if err == nil {
			return
		}
		logrus.WithError(err).Warn("audit queue unavailable, writing entry directly")
	}
	if s.db != nil {
		if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
			logrus.WithError(err).WithField("action", entry.Action).Error("Failed to save audit entry")
		}
	}
}

func (s *AuditService) enqueue(ctx context.Context, entry models.AuditEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	key := auditKeyPrefix + entry.ID
	pipe := s.redisClient.TxPipeline()
	pipe.Set(ctx, key, data, auditCacheTTL)
	pipe.ZAdd(ctx, auditQueueKey, &redis.Z{Score: float64(entry.CreatedAt.Unix()), Member: key})
	_, err = pipe.Exec(ctx)
	return err
}

func (s *AuditService) remember(entry models.AuditEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recent = append(s.recent, entry)
	if len(s.recent) > recentCapacity {
		s.recent = append([]models.AuditEntry(nil), s.recent[len(s.recent)-recentCapacity:]...)
	}
}

// List returns up to limit entries, newest first.
func (s *AuditService) List(ctx context.Context, limit int) ([]models.AuditEntry, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	if s.db == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		out := make([]models.AuditEntry, 0, limit)
		for i := len(s.recent) - 1; i >= 0 && len(out) < limit; i-- {
			out = append(out, s.recent[i])
		}
		return out, nil
	}

	// Flush first so the listing includes queued entries.
	if s.redisClient != nil {
		if _, err := s.FlushCached(ctx); err != nil {
			logrus.WithError(err).Warn("audit flush before listing failed")
		}
	}
	var entries []models.AuditEntry
	err := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve audit entries: %v", err)
	}
	return entries, nil
}

// FlushCached moves queued entries from Redis into the database.
func (s *AuditService) FlushCached(ctx context.Context) (int, error) {
	if s.redisClient == nil {
		return 0, fmt.Errorf("redis client not available")
	}
	if s.db == nil {
		return 0, fmt.Errorf("database not available")
	}

	keys, err := s.redisClient.ZRangeByScore(ctx, auditQueueKey, &redis.ZRangeBy{
		Min: "0",
		Max: strconv.FormatInt(time.Now().Unix(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read audit queue: %v", err)
	}

	var processed, failed int
	for _, key := range keys {
		data, err := s.redisClient.Get(ctx, key).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				// expired before it was flushed
				s.redisClient.ZRem(ctx, auditQueueKey, key)
			} else {
				failed++
			}
			continue
		}

		var entry models.AuditEntry
		if err := json.Unmarshal([]byte(data), &entry); err != nil {
			logrus.WithError(err).Errorf("Failed to decode audit entry %s", key)
			failed++
			continue
		}
		if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
			logrus.WithError(err).Errorf("Failed to save audit entry %s", key)
			failed++
			continue
		}

		pipe := s.redisClient.Pipeline()
		pipe.Del(ctx, key)
		pipe.ZRem(ctx, auditQueueKey, key)
		if _, err := pipe.Exec(ctx); err != nil {
			logrus.WithError(err).Errorf("Failed to drop flushed audit entry %s", key)
		}
		processed++
	}

	if processed > 0 || failed > 0 {
		logrus.Infof("Flushed %d audit entries to database, %d errors", processed, failed)
	}
	return processed, nil
}

// ArchiveOld zips entries older than daysOld days, uploads the archive and
// removes the entries from the database.
func (s *AuditService) ArchiveOld(ctx context.Context, daysOld int) (*models.ExportArchive, error) {
	if daysOld < 7 {
		return nil, fmt.Errorf("minimum archive age is 7 days")
	}
	if s.db == nil || s.uploader == nil {
		return nil, fmt.Errorf("archiving needs both a database and archive storage")
	}

	cutoff := time.Now().AddDate(0, 0, -daysOld)
	var entries []models.AuditEntry
	if err := s.db.WithContext(ctx).Where("created_at < ?", cutoff).Order("created_at ASC").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch audit entries for archiving: %v", err)
	}
	if len(entries) == 0 {
		logrus.Debug("No audit entries to archive")
		return nil, nil
	}

	fileName := fmt.Sprintf("audit_%s.zip", cutoff.Format("2006-01-02"))
	data, err := buildAuditArchive(entries, fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create audit archive: %v", err)
	}

	key := fmt.Sprintf("audit/archived/%d/%02d/%s", cutoff.Year(), cutoff.Month(), fileName)
	url, err := s.uploader.Upload(ctx, key, "application/zip", data)
	if err != nil {
		return nil, fmt.Errorf("failed to upload audit archive: %v", err)
	}

	res := s.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&models.AuditEntry{})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to delete archived audit entries: %v", res.Error)
	}
	logrus.Infof("Archived %d audit entries to %s", res.RowsAffected, key)

	archive := &models.ExportArchive{
		Kind:        "audit",
		FileName:    fileName,
		S3Key:       key,
		URL:         url,
		RecordCount: len(entries),
		FileSize:    int64(len(data)),
		Status:      "completed",
	}
	if err := s.SaveArchive(ctx, archive); err != nil {
		logrus.WithError(err).Error("Failed to save archive metadata")
	}
	return archive, nil
}

// SaveArchive records archive metadata.
func (s *AuditService) SaveArchive(ctx context.Context, archive *models.ExportArchive) error {
	if s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(archive).Error
}

// Archives lists archive metadata, newest first.
func (s *AuditService) Archives(ctx context.Context) ([]models.ExportArchive, error) {
	if s.db == nil {
		return []models.ExportArchive{}, nil
	}
	var archives []models.ExportArchive
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&archives).Error; err != nil {
		return nil, fmt.Errorf("failed to retrieve archives: %v", err)
	}
	return archives, nil
}

// StartMaintenance schedules the flush and archive jobs. The caller stops the
// returned cron on shutdown.
func (s *AuditService) StartMaintenance(spec string, archiveDays int) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if s.redisClient != nil && s.db != nil {
			if _, err := s.FlushCached(ctx); err != nil {
				logrus.WithError(err).Warn("periodic audit flush failed")
			}
		}
		if s.uploader != nil && s.db != nil && archiveDays > 0 {
			if _, err := s.ArchiveOld(ctx, archiveDays); err != nil {
				logrus.WithError(err).Warn("periodic audit archive failed")
			}
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid audit schedule %q: %w", spec, err)
	}
	c.Start()
	return c, nil
}

// buildAuditArchive packs entries as JSON and CSV.
func buildAuditArchive(entries []models.AuditEntry, fileName string) ([]byte, error) {
	buf := new(bytes.Buffer)
	zw := zip.NewWriter(buf)

	jf, err := zw.Create("audit.json")
	if err != nil {
		return nil, err
	}
	enc := json.NewEncoder(jf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(map[string]interface{}{
		"file_name":      fileName,
		"export_date":    time.Now().UTC(),
		"record_count":   len(entries),
		"format_version": "1.0",
		"entries":        entries,
	}); err != nil {
		return nil, err
	}

	cf, err := zw.Create("audit.csv")
	if err != nil {
		return nil, err
	}
	w := csv.NewWriter(cf)
	_ = w.Write([]string{"ID", "Action", "Scope", "Actor", "Forced", "Slots", "Conflicts", "IP Address", "Created At", "Details"})
	for _, e := range entries {
		_ = w.Write([]string{
			e.ID,
			e.Action,
			e.Scope,
			e.Actor,
			strconv.FormatBool(e.Forced),
			strconv.Itoa(e.SlotCount),
			strconv.Itoa(e.ConflictCount),
			e.IPAddress,
			e.CreatedAt.Format("2006-01-02 15:04:05"),
			string(e.Details),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}

	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
