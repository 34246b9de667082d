package leadsync

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/leadsync/internal/mapping"
	"github.com/sells-group/leadsync/internal/model"
	"github.com/sells-group/leadsync/internal/phone"
	"github.com/sells-group/leadsync/pkg/bitrix"
)

// SchemaSource supplies the custom-field schema.
type SchemaSource interface {
	Resolve(ctx context.Context) (*model.FieldSchema, error)
}

// Recorder journals processed submissions.
type Recorder interface {
	RecordSync(ctx context.Context, rec *model.SyncRecord) error
}

// Orchestrator runs a submission through normalization, schema resolution,
// contact resolution, answer mapping and deal creation.
type Orchestrator struct {
	client   bitrix.Client
	schema   SchemaSource
	contacts *ContactResolver
	mapper   *mapping.Mapper
	builder  *DealBuilder
	recorder Recorder

	requirePhone  bool
	linkContact   bool
	dynamicSchema bool

	now func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRecorder journals every sync, successful or not.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) {
		o.recorder = r
	}
}

// WithRequirePhone rejects submissions without a phone. On by default.
func WithRequirePhone(required bool) Option {
	return func(o *Orchestrator) {
		o.requirePhone = required
	}
}

// WithContactLink issues crm.deal.contact.add after the deal is created.
func WithContactLink(enabled bool) Option {
	return func(o *Orchestrator) {
		o.linkContact = enabled
	}
}

// WithDynamicSchema toggles live schema discovery. When off only the static
// table is used. On by default.
func WithDynamicSchema(enabled bool) Option {
	return func(o *Orchestrator) {
		o.dynamicSchema = enabled
	}
}

// NewOrchestrator wires the sync engine.
func NewOrchestrator(client bitrix.Client, schema SchemaSource, contacts *ContactResolver, mapper *mapping.Mapper, builder *DealBuilder, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		client:        client,
		schema:        schema,
		contacts:      contacts,
		mapper:        mapper,
		builder:       builder,
		requirePhone:  true,
		dynamicSchema: true,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Sync processes one submission. It fails on a missing phone (before any
// CRM call), on schema discovery, on a contact lookup failure under the
// abort policy, and on deal creation. Contact creation and linking failures
// only add warnings.
func (o *Orchestrator) Sync(ctx context.Context, sub model.Submission) (*model.SyncResult, error) {
	p := phone.Normalize(sub.RawPhone())
	log := zap.L().With(zap.String("phone", p.String()))

	res, err := o.run(ctx, sub, p, log)
	o.record(ctx, sub, p, res, err)
	if err != nil {
		log.Error("leadsync: sync failed", zap.String("kind", string(KindOf(err))), zap.Error(err))
		return nil, err
	}

	contactID := ""
	if res.ContactID != nil {
		contactID = *res.ContactID
	}
	log.Info("leadsync: sync complete",
		zap.String("deal_id", res.DealID),
		zap.String("contact_id", contactID),
		zap.Int("mapped", len(res.MappedFields)),
		zap.Int("warnings", len(res.Warnings)),
	)
	return res, nil
}

func (o *Orchestrator) run(ctx context.Context, sub model.Submission, p phone.Phone, log *zap.Logger) (*model.SyncResult, error) {
	if o.requirePhone && p.IsEmpty() {
		return nil, &Error{Kind: KindValidation, Op: "validate submission", Err: ErrPhoneRequired}
	}

	var schema *model.FieldSchema
	if o.dynamicSchema {
		s, err := o.schema.Resolve(ctx)
		if err != nil {
			return nil, &Error{Kind: KindSchemaFetch, Op: "resolve schema", Err: err}
		}
		schema = s
	}

	res := &model.SyncResult{}

	resolution, err := o.contacts.Resolve(ctx, sub.DisplayName(), p)
	if resolution.Warning != "" {
		res.Warnings = append(res.Warnings, resolution.Warning)
	}
	switch KindOf(err) {
	case "":
	case KindContactCreate:
		log.Warn("leadsync: continuing without contact", zap.Error(err))
		res.Warnings = append(res.Warnings, err.Error())
	default:
		return nil, err
	}

	mapped := o.mapper.Map(sub.Answers, schema)
	res.MappedFields = mapped.Fields
	res.DroppedKeys = mapped.Dropped

	deal := o.builder.Build(sub, p, resolution.ContactID, mapped.Fields)
	dealID, err := bitrix.AddDeal(ctx, o.client, deal.Fields())
	if err != nil {
		return nil, &Error{Kind: KindCRMCall, Op: "create deal", Err: err}
	}
	res.DealID = dealID

	if resolution.ContactID != "" {
		id := resolution.ContactID
		res.ContactID = &id

		if o.linkContact {
			if err := bitrix.AddDealContact(ctx, o.client, dealID, id); err != nil {
				linkErr := &Error{Kind: KindContactLink, Op: "link contact", Err: err}
				log.Warn("leadsync: contact link failed", zap.String("deal_id", dealID), zap.Error(linkErr))
				res.Warnings = append(res.Warnings, linkErr.Error())
			}
		}
	}

	return res, nil
}

func (o *Orchestrator) record(ctx context.Context, sub model.Submission, p phone.Phone, res *model.SyncResult, syncErr error) {
	if o.recorder == nil {
		return
	}

	rec := &model.SyncRecord{
		ID:          uuid.NewString(),
		Name:        sub.DisplayName(),
		Phone:       p.String(),
		Status:      model.SyncStatusSucceeded,
		UTMSource:   sub.UTM.Source,
		UTMCampaign: sub.UTM.Campaign,
		CreatedAt:   o.now().UTC(),
	}
	if syncErr != nil {
		rec.Status = model.SyncStatusFailed
		rec.ErrorKind = string(KindOf(syncErr))
		rec.Error = syncErr.Error()
	}
	if res != nil {
		rec.DealID = res.DealID
		if res.ContactID != nil {
			rec.ContactID = *res.ContactID
		}
		rec.MappedFields = res.MappedFields
		rec.Warnings = res.Warnings
	}

	if err := o.recorder.RecordSync(ctx, rec); err != nil {
		zap.L().Warn("leadsync: journal write failed", zap.String("sync_id", rec.ID), zap.Error(err))
		if res != nil {
			res.Warnings = append(res.Warnings, "journal write failed: "+err.Error())
		}
	}
}
