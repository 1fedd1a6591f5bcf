package shopify

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"engagement-rewards/ledger"
	"engagement-rewards/logger"
	"engagement-rewards/store"
)

const (
	namespace       = "custom"
	keyLedger       = "loyalty_ledger"
	keyStreak       = "devotional_current_streak"
	keyTotalDays    = "devotional_total_days"
	keyLastVisit    = "devotional_last_visit"
	keyCommentLog   = "devotional_comment_history"
	keyRewardLevel  = "rewardlevel"
	keyNickname     = "nickname"
	birthNamespace  = "facts"
	keyBirthDate    = "birth_date"
	staleObjectCode = "STALE_OBJECT"
)

// RecordStore keeps the engagement record in a JSON customer metafield whose
// compareDigest is the version token. The older per-field metafields are
// written alongside it so storefront themes keep reading them.
type RecordStore struct {
	Client *Client
	Log    *logger.Logger
}

func NewRecordStore(client *Client, log *logger.Logger) *RecordStore {
	return &RecordStore{Client: client, Log: log}
}

type metafield struct {
	Value         string `json:"value"`
	CompareDigest string `json:"compareDigest"`
}

type customerNode struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	Tags        []string   `json:"tags"`
	Ledger      *metafield `json:"ledger"`
	Streak      *metafield `json:"streak"`
	Total       *metafield `json:"total"`
	LastVisit   *metafield `json:"lastVisit"`
	CommentLog  *metafield `json:"commentLog"`
	RewardLevel *metafield `json:"rewardLevel"`
}

const fetchCustomerQuery = `
query fetchEngagement($id: ID!) {
  customer(id: $id) {
    id
    email
    tags
    ledger: metafield(namespace: "custom", key: "loyalty_ledger") { value compareDigest }
    streak: metafield(namespace: "custom", key: "devotional_current_streak") { value }
    total: metafield(namespace: "custom", key: "devotional_total_days") { value }
    lastVisit: metafield(namespace: "custom", key: "devotional_last_visit") { value }
    commentLog: metafield(namespace: "custom", key: "devotional_comment_history") { value }
    rewardLevel: metafield(namespace: "custom", key: "rewardlevel") { value }
  }
}`

// ledgerDoc is the stored JSON shape of the loyalty_ledger metafield.
type ledgerDoc struct {
	Schema             int                 `json:"schema"`
	LastVisit          string              `json:"lastVisit,omitempty"`
	CurrentStreak      int                 `json:"currentStreak"`
	TotalDays          int                 `json:"totalDays"`
	VisitHistory       []ledger.Date       `json:"visitHistory"`
	RewardedArticleIDs []string            `json:"rewardedArticleIds"`
	ProfileAudit       []ledger.AuditEntry `json:"profileAudit"`
}

func (s *RecordStore) Fetch(ctx context.Context, customerKey string) (store.Snapshot, error) {
	var out struct {
		Customer *customerNode `json:"customer"`
	}
	if err := s.Client.Do(ctx, fetchCustomerQuery, map[string]any{"id": CustomerGID(customerKey)}, &out); err != nil {
		return store.Snapshot{}, fmt.Errorf("fetch customer %s: %w", customerKey, err)
	}
	if out.Customer == nil {
		return store.Snapshot{}, fmt.Errorf("customer %s: %w", customerKey, store.ErrNotFound)
	}
	return decodeCustomer(customerKey, out.Customer), nil
}

func decodeCustomer(customerKey string, c *customerNode) store.Snapshot {
	var dec ledger.Decoder
	rec := ledger.Record{CustomerID: customerKey, Tags: c.Tags}
	if c.RewardLevel != nil {
		rec.RewardLevelOverride = dec.OptionalInt(keyRewardLevel, c.RewardLevel.Value)
	}

	var legacyArticles []string
	if c.CommentLog != nil {
		legacyArticles = dec.Strings(keyCommentLog, c.CommentLog.Value, ledger.DefaultArticleCap)
	}

	snap := store.Snapshot{Email: c.Email}
	if c.Ledger != nil {
		snap.Version = c.Ledger.CompareDigest
		decodeLedgerDoc(c.Ledger.Value, &rec, &dec)
		// articles paid by the older per-field integration stay paid
		for _, id := range legacyArticles {
			if !ledger.Contains(rec.RewardedArticleIDs, id) && len(rec.RewardedArticleIDs) < ledger.DefaultArticleCap {
				rec.RewardedArticleIDs = append(rec.RewardedArticleIDs, id)
			}
		}
	} else {
		if c.Streak != nil {
			rec.CurrentStreak = dec.Int(keyStreak, c.Streak.Value)
		}
		if c.Total != nil {
			rec.TotalDays = dec.Int(keyTotalDays, c.Total.Value)
		}
		if c.LastVisit != nil {
			rec.LastVisit = dec.Date(keyLastVisit, c.LastVisit.Value)
		}
		rec.RewardedArticleIDs = legacyArticles
	}
	snap.Record = rec
	snap.Issues = dec.Issues
	return snap
}

func decodeLedgerDoc(raw string, rec *ledger.Record, dec *ledger.Decoder) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		dec.Note(keyLedger, raw, err)
		return
	}
	rec.LastVisit = dec.Date("lastVisit", scalar(fields["lastVisit"]))
	rec.CurrentStreak = dec.Int("currentStreak", scalar(fields["currentStreak"]))
	rec.TotalDays = dec.Int("totalDays", scalar(fields["totalDays"]))
	rec.VisitHistory = dec.Dates("visitHistory", string(fields["visitHistory"]), ledger.DefaultHistoryCap)
	rec.RewardedArticleIDs = dec.Strings("rewardedArticleIds", string(fields["rewardedArticleIds"]), ledger.DefaultArticleCap)
	rec.ProfileAudit = dec.Audit("profileAudit", string(fields["profileAudit"]), ledger.DefaultAuditCap)
}

// scalar unwraps a JSON string or returns a bare JSON number as text.
func scalar(raw json.RawMessage) string {
	text := strings.TrimSpace(string(raw))
	if text == "" || text == "null" {
		return ""
	}
	if strings.HasPrefix(text, `"`) {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	return text
}

func encodeLedgerDoc(r ledger.Record) (string, error) {
	doc := ledgerDoc{
		Schema:             1,
		LastVisit:          r.LastVisit.String(),
		CurrentStreak:      r.CurrentStreak,
		TotalDays:          r.TotalDays,
		VisitHistory:       r.VisitHistory,
		RewardedArticleIDs: r.RewardedArticleIDs,
		ProfileAudit:       r.ProfileAudit,
	}
	if doc.VisitHistory == nil {
		doc.VisitHistory = []ledger.Date{}
	}
	if doc.RewardedArticleIDs == nil {
		doc.RewardedArticleIDs = []string{}
	}
	if doc.ProfileAudit == nil {
		doc.ProfileAudit = []ledger.AuditEntry{}
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

const metafieldsSetMutation = `
mutation ledgerCommit($metafields: [MetafieldsSetInput!]!) {
  metafieldsSet(metafields: $metafields) {
    metafields { key namespace compareDigest }
    userErrors { field message code }
  }
}`

type metafieldsSetResult struct {
	MetafieldsSet struct {
		Metafields []struct {
			Key           string `json:"key"`
			Namespace     string `json:"namespace"`
			CompareDigest string `json:"compareDigest"`
		} `json:"metafields"`
		UserErrors []userErrorPayload `json:"userErrors"`
	} `json:"metafieldsSet"`
}

// Commit writes profile fields first (idempotent, so safe to repeat after a
// conflict), then the ledger metafield conditioned on expectedVersion, then
// milestone tags. metafieldsSet is all-or-nothing, so the legacy mirrors land
// with the ledger or not at all.
func (s *RecordStore) Commit(ctx context.Context, customerKey, expectedVersion string, c ledger.Commit) (string, error) {
	owner := CustomerGID(customerKey)

	if c.Profile != nil {
		if err := s.applyProfile(ctx, owner, *c.Profile); err != nil {
			return "", err
		}
	}

	doc, err := encodeLedgerDoc(c.Record)
	if err != nil {
		return "", fmt.Errorf("encode ledger: %w", err)
	}
	var digest any
	if expectedVersion != "" {
		digest = expectedVersion
	}
	fields := []map[string]any{
		{"ownerId": owner, "namespace": namespace, "key": keyLedger, "type": "json", "value": doc, "compareDigest": digest},
		{"ownerId": owner, "namespace": namespace, "key": keyStreak, "type": "number_integer", "value": strconv.Itoa(c.Record.CurrentStreak)},
		{"ownerId": owner, "namespace": namespace, "key": keyTotalDays, "type": "number_integer", "value": strconv.Itoa(c.Record.TotalDays)},
		{"ownerId": owner, "namespace": namespace, "key": keyCommentLog, "type": "json", "value": ledger.EncodeJSON(c.Record.RewardedArticleIDs)},
	}
	if !c.Record.LastVisit.IsZero() {
		fields = append(fields, map[string]any{"ownerId": owner, "namespace": namespace, "key": keyLastVisit, "type": "date", "value": c.Record.LastVisit.String()})
	}

	var out metafieldsSetResult
	if err := s.Client.Do(ctx, metafieldsSetMutation, map[string]any{"metafields": fields}, &out); err != nil {
		return "", fmt.Errorf("commit ledger %s: %w", customerKey, err)
	}
	if err := userErrorsToErr("metafieldsSet", out.MetafieldsSet.UserErrors); err != nil {
		return "", err
	}

	newVersion := ""
	for _, m := range out.MetafieldsSet.Metafields {
		if m.Key == keyLedger && m.Namespace == namespace {
			newVersion = m.CompareDigest
		}
	}

	if len(c.AddTags) > 0 {
		if err := s.addTags(ctx, owner, c.AddTags); err != nil {
			s.Log.Error("[LEDGER] milestone tags not applied after commit",
				"customer_id", customerKey, "tags", c.AddTags, "error", err)
		}
	}
	return newVersion, nil
}

func userErrorsToErr(op string, errs []userErrorPayload) error {
	if len(errs) == 0 {
		return nil
	}
	for _, e := range errs {
		if e.Code == staleObjectCode {
			return fmt.Errorf("%s: %w: %s", op, store.ErrConflict, e.Message)
		}
	}
	return &store.RejectedError{Op: op, UserErrors: toUserErrors(errs)}
}

const tagsAddMutation = `
mutation addTags($id: ID!, $tags: [String!]!) {
  tagsAdd(id: $id, tags: $tags) {
    userErrors { field message }
  }
}`

func (s *RecordStore) addTags(ctx context.Context, owner string, tags []string) error {
	var out struct {
		TagsAdd struct {
			UserErrors []userErrorPayload `json:"userErrors"`
		} `json:"tagsAdd"`
	}
	if err := s.Client.Do(ctx, tagsAddMutation, map[string]any{"id": owner, "tags": tags}, &out); err != nil {
		return err
	}
	return userErrorsToErr("tagsAdd", out.TagsAdd.UserErrors)
}

const fetchOrderLockQuery = `
query orderLock($id: ID!) {
  order(id: $id) {
    id
    customer { id }
    lock: metafield(namespace: "custom", key: "rewardlevel") { value }
  }
}`

func (s *RecordStore) FetchOrderLock(ctx context.Context, orderID string) (*ledger.OrderLock, error) {
	var out struct {
		Order *struct {
			ID       string `json:"id"`
			Customer *struct {
				ID string `json:"id"`
			} `json:"customer"`
			Lock *metafield `json:"lock"`
		} `json:"order"`
	}
	if err := s.Client.Do(ctx, fetchOrderLockQuery, map[string]any{"id": OrderGID(orderID)}, &out); err != nil {
		return nil, fmt.Errorf("fetch order %s: %w", orderID, err)
	}
	if out.Order == nil {
		return nil, fmt.Errorf("order %s: %w", orderID, store.ErrNotFound)
	}
	if out.Order.Lock == nil || strings.TrimSpace(out.Order.Lock.Value) == "" {
		return nil, nil
	}
	var dec ledger.Decoder
	lock := &ledger.OrderLock{OrderID: orderID, RewardLevel: dec.Int(keyRewardLevel, out.Order.Lock.Value)}
	if out.Order.Customer != nil {
		lock.CustomerID = LegacyID(out.Order.Customer.ID)
	}
	return lock, nil
}

// CommitOrderWithLock stamps the reward level on the order with a null
// compareDigest, which Shopify only accepts while the metafield is absent.
// The grant itself is issued by the caller once the lock is in place.
func (s *RecordStore) CommitOrderWithLock(ctx context.Context, orderID string, lock ledger.OrderLock, _ ledger.Grant) error {
	fields := []map[string]any{{
		"ownerId":       OrderGID(orderID),
		"namespace":     namespace,
		"key":           keyRewardLevel,
		"type":          "number_integer",
		"value":         strconv.Itoa(lock.RewardLevel),
		"compareDigest": nil,
	}}
	var out metafieldsSetResult
	if err := s.Client.Do(ctx, metafieldsSetMutation, map[string]any{"metafields": fields}, &out); err != nil {
		return fmt.Errorf("lock order %s: %w", orderID, err)
	}
	return userErrorsToErr("metafieldsSet", out.MetafieldsSet.UserErrors)
}
