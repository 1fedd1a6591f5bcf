package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"engagement-rewards/ledger"
	"engagement-rewards/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore keeps engagement records in a SQL database. Conditional commits
// compare the integer version column inside a transaction.
//
// With a Resolver set, Fetch of a key that has no local customer row asks the
// resolver first: unknown keys fail with ErrNotFound and known ones get a
// mirror row. Without one every key is accepted and created lazily.
type GormStore struct {
	DB       *gorm.DB
	Resolver CustomerResolver
	Now      func() time.Time
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{DB: db, Now: time.Now}
}

// AutoMigrate creates or updates the tables used by the store.
func (s *GormStore) AutoMigrate() error {
	return s.DB.AutoMigrate(
		&models.Customer{},
		&models.EngagementRecord{},
		&models.OrderLock{},
		&models.CreditGrant{},
	)
}

func (s *GormStore) Fetch(ctx context.Context, customerKey string) (Snapshot, error) {
	db := s.DB.WithContext(ctx)
	snap := Snapshot{Record: ledger.Record{CustomerID: customerKey}}
	var dec ledger.Decoder

	var cust models.Customer
	err := db.Where("id = ?", customerKey).Limit(1).Find(&cust).Error
	if err != nil {
		return Snapshot{}, upstream("fetch customer", err)
	}
	if cust.ID != "" {
		snap.Email = cust.Email
		snap.Record.Tags = dec.Strings("tags", cust.Tags, 0)
		snap.Record.RewardLevelOverride = cust.RewardLevelOverride
	} else if s.Resolver != nil {
		email, err := s.resolveCustomer(ctx, customerKey)
		if err != nil {
			return Snapshot{}, err
		}
		snap.Email = email
	}

	var row models.EngagementRecord
	err = db.Where("customer_id = ?", customerKey).Limit(1).Find(&row).Error
	if err != nil {
		return Snapshot{}, upstream("fetch engagement record", err)
	}
	if row.CustomerID == "" {
		snap.Issues = dec.Issues
		return snap, nil
	}

	snap.Version = strconv.FormatInt(row.Version, 10)
	snap.Record.LastVisit = dec.Date("last_visit", row.LastVisit)
	snap.Record.CurrentStreak = max(row.CurrentStreak, 0)
	snap.Record.TotalDays = max(row.TotalDays, 0)
	snap.Record.VisitHistory = dec.Dates("visit_history", row.VisitHistory, ledger.DefaultHistoryCap)
	snap.Record.RewardedArticleIDs = dec.Strings("rewarded_article_ids", row.RewardedArticleIDs, ledger.DefaultArticleCap)
	snap.Record.ProfileAudit = dec.Audit("profile_audit", row.ProfileAudit, ledger.DefaultAuditCap)
	snap.Issues = dec.Issues
	return snap, nil
}

// resolveCustomer checks customerKey with the resolver and inserts its mirror row.
func (s *GormStore) resolveCustomer(ctx context.Context, customerKey string) (string, error) {
	email, err := s.Resolver.CustomerEmail(ctx, customerKey)
	if err != nil {
		return "", err
	}
	cust := models.Customer{ID: customerKey, Email: email, Tags: "[]"}
	if err := s.DB.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&cust).Error; err != nil {
		return "", upstream("mirror customer", err)
	}
	return email, nil
}

func (s *GormStore) Commit(ctx context.Context, customerKey, expectedVersion string, c ledger.Commit) (string, error) {
	var newVersion int64
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fields := recordColumns(c.Record)

		if expectedVersion == "" || expectedVersion == "0" {
			row := models.EngagementRecord{
				CustomerID:         customerKey,
				Version:            1,
				LastVisit:          c.Record.LastVisit.String(),
				CurrentStreak:      c.Record.CurrentStreak,
				TotalDays:          c.Record.TotalDays,
				VisitHistory:       fields["visit_history"].(string),
				RewardedArticleIDs: fields["rewarded_article_ids"].(string),
				ProfileAudit:       fields["profile_audit"].(string),
			}
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return ErrConflict
			}
			newVersion = 1
		} else {
			expected, err := strconv.ParseInt(expectedVersion, 10, 64)
			if err != nil {
				return fmt.Errorf("%w: malformed version %q", ErrConflict, expectedVersion)
			}
			fields["version"] = gorm.Expr("version + 1")
			res := tx.Model(&models.EngagementRecord{}).
				Where("customer_id = ? AND version = ?", customerKey, expected).
				Updates(fields)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return ErrConflict
			}
			newVersion = expected + 1
		}

		if err := s.applyCustomer(tx, customerKey, c); err != nil {
			return err
		}
		return s.recordGrants(tx, customerKey, c.Grants)
	})
	if err != nil {
		if errors.Is(err, ErrConflict) {
			return "", err
		}
		return "", upstream("commit", err)
	}
	return strconv.FormatInt(newVersion, 10), nil
}

func (s *GormStore) FetchOrderLock(ctx context.Context, orderID string) (*ledger.OrderLock, error) {
	var row models.OrderLock
	if err := s.DB.WithContext(ctx).Where("order_id = ?", orderID).Limit(1).Find(&row).Error; err != nil {
		return nil, upstream("fetch order lock", err)
	}
	if row.OrderID == "" {
		return nil, nil
	}
	return &ledger.OrderLock{OrderID: row.OrderID, CustomerID: row.CustomerID, RewardLevel: row.RewardLevel}, nil
}

func (s *GormStore) CommitOrderWithLock(ctx context.Context, orderID string, lock ledger.OrderLock, grant ledger.Grant) error {
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := models.OrderLock{OrderID: orderID, CustomerID: lock.CustomerID, RewardLevel: lock.RewardLevel}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrConflict
		}
		return s.recordGrants(tx, lock.CustomerID, []ledger.Grant{grant})
	})
	if err != nil && !errors.Is(err, ErrConflict) {
		return upstream("commit order lock", err)
	}
	return err
}

// MarkGrants records the sink outcome for the given grants.
func (s *GormStore) MarkGrants(ctx context.Context, sourceKeys []string, status GrantStatus, detail string) error {
	if len(sourceKeys) == 0 {
		return nil
	}
	updates := map[string]any{
		"status":     string(status),
		"attempts":   gorm.Expr("attempts + 1"),
		"last_error": detail,
	}
	if status == GrantIssued {
		updates["issued_at"] = s.Now().UTC()
	}
	err := s.DB.WithContext(ctx).Model(&models.CreditGrant{}).
		Where("source_key IN ? AND status = ?", sourceKeys, models.GrantStatusPending).
		Updates(updates).Error
	if err != nil {
		return upstream("mark grants", err)
	}
	return nil
}

// PendingGrants lists grants still pending after the grace period, oldest first.
func (s *GormStore) PendingGrants(ctx context.Context, olderThanSeconds int, limit int) ([]PendingGrant, error) {
	cutoff := s.Now().Add(-time.Duration(olderThanSeconds) * time.Second)
	var rows []models.CreditGrant
	err := s.DB.WithContext(ctx).
		Where("status = ? AND created_at <= ?", models.GrantStatusPending, cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, upstream("list pending grants", err)
	}
	out := make([]PendingGrant, 0, len(rows))
	for _, r := range rows {
		out = append(out, PendingGrant{
			CustomerKey: r.CustomerID,
			Attempts:    r.Attempts,
			Grant: ledger.Grant{
				Kind:      ledger.GrantKind(r.Kind),
				Amount:    ledger.Money{AmountMinor: r.AmountMinor, Currency: r.Currency, Scale: r.Scale},
				SourceKey: r.SourceKey,
				Reason:    r.Reason,
			},
		})
	}
	return out, nil
}

func (s *GormStore) applyCustomer(tx *gorm.DB, customerKey string, c ledger.Commit) error {
	if len(c.AddTags) == 0 && c.Profile == nil {
		return nil
	}
	cust := models.Customer{ID: customerKey, Tags: "[]"}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&cust).Error; err != nil {
		return err
	}

	updates := map[string]any{}
	if len(c.AddTags) > 0 {
		updates["tags"] = ledger.EncodeJSON(c.Record.Tags)
	}
	if p := c.Profile; p != nil {
		if p.FirstName != nil {
			updates["first_name"] = *p.FirstName
		}
		if p.LastName != nil {
			updates["last_name"] = *p.LastName
		}
		if p.Nickname != nil {
			updates["nickname"] = *p.Nickname
		}
		if p.BirthDate != nil {
			updates["birth_date"] = p.BirthDate.String()
		}
		if p.Address != nil {
			b, err := json.Marshal(p.Address)
			if err != nil {
				return err
			}
			updates["address"] = string(b)
		}
		if p.EmailConsent != nil {
			updates["email_subscribed"] = *p.EmailConsent
		}
		if p.SMSConsent != nil {
			updates["sms_subscribed"] = *p.SMSConsent
		}
	}
	return tx.Model(&models.Customer{}).Where("id = ?", customerKey).Updates(updates).Error
}

// recordGrants inserts pending grants; a source key seen before is skipped.
func (s *GormStore) recordGrants(tx *gorm.DB, customerKey string, grants []ledger.Grant) error {
	for _, g := range grants {
		row := models.CreditGrant{
			ID:          uuid.NewString(),
			SourceKey:   g.SourceKey,
			CustomerID:  customerKey,
			Kind:        string(g.Kind),
			AmountMinor: g.Amount.AmountMinor,
			Currency:    g.Amount.Currency,
			Scale:       g.Amount.Scale,
			Reason:      g.Reason,
			Status:      models.GrantStatusPending,
		}
		if err := tx.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "source_key"}}, DoNothing: true}).Create(&row).Error; err != nil {
			return fmt.Errorf("record grant %s: %w", g.SourceKey, err)
		}
	}
	return nil
}

func recordColumns(r ledger.Record) map[string]any {
	return map[string]any{
		"last_visit":           r.LastVisit.String(),
		"current_streak":       r.CurrentStreak,
		"total_days":           r.TotalDays,
		"visit_history":        ledger.EncodeJSON(r.VisitHistory),
		"rewarded_article_ids": ledger.EncodeJSON(r.RewardedArticleIDs),
		"profile_audit":        ledger.EncodeJSON(r.ProfileAudit),
	}
}

func upstream(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %v", op, ErrTransientUpstream, err)
}
