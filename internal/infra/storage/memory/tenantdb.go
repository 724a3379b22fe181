package memory

import (
	"context"
	"sort"
	"time"

	"github.com/ahrav/docflow/internal/domain/audit"
	"github.com/ahrav/docflow/internal/domain/campaign"
	"github.com/ahrav/docflow/internal/domain/credential"
	"github.com/ahrav/docflow/internal/domain/document"
	"github.com/ahrav/docflow/internal/domain/execution"
	"github.com/ahrav/docflow/internal/domain/job"
	"github.com/ahrav/docflow/internal/domain/processor"
	"github.com/ahrav/docflow/internal/domain/usage"
	"github.com/ahrav/docflow/internal/domain/workflow"
)

// CampaignStore is an in-memory tenant-scoped campaign repository.
type CampaignStore struct{ s *scoped[*campaign.Campaign] }

// NewCampaignStore creates an empty campaign store.
func NewCampaignStore() *CampaignStore { return &CampaignStore{s: newScoped[*campaign.Campaign]()} }

var _ campaign.Repository = (*CampaignStore)(nil)

// Create persists a new campaign.
func (cs *CampaignStore) Create(ctx context.Context, c *campaign.Campaign) error {
	tid, err := tenantID(ctx)
	if err != nil {
		return err
	}
	cs.s.mu.Lock()
	defer cs.s.mu.Unlock()
	cp := *c
	cs.s.bucket(tid)[c.ID] = &cp
	return nil
}

// Update modifies an existing campaign.
func (cs *CampaignStore) Update(ctx context.Context, c *campaign.Campaign) error {
	tid, err := tenantID(ctx)
	if err != nil {
		return err
	}
	cs.s.mu.Lock()
	defer cs.s.mu.Unlock()
	if _, ok := cs.s.bucket(tid)[c.ID]; !ok {
		return campaign.ErrCampaignNotFound
	}
	cp := *c
	cs.s.bucket(tid)[c.ID] = &cp
	return nil
}

// FindBySlug retrieves a campaign by slug.
func (cs *CampaignStore) FindBySlug(ctx context.Context, slug string) (*campaign.Campaign, error) {
	tid, err := tenantID(ctx)
	if err != nil {
		return nil, err
	}
	cs.s.mu.RLock()
	defer cs.s.mu.RUnlock()
	for _, c := range cs.s.bucket(tid) {
		if c.Slug == slug {
			cp := *c
			return &cp, nil
		}
	}
	return nil, campaign.ErrCampaignNotFound
}

// FindByID retrieves a campaign by id.
func (cs *CampaignStore) FindByID(ctx context.Context, id string) (*campaign.Campaign, error) {
	tid, err := tenantID(ctx)
	if err != nil {
		return nil, err
	}
	cs.s.mu.RLock()
	defer cs.s.mu.RUnlock()
	c, ok := cs.s.bucket(tid)[id]
	if !ok {
		return nil, campaign.ErrCampaignNotFound
	}
	cp := *c
	return &cp, nil
}

// DocumentStore is an in-memory tenant-scoped document repository.
type DocumentStore struct{ s *scoped[*document.Document] }

// NewDocumentStore creates an empty document store.
func NewDocumentStore() *DocumentStore { return &DocumentStore{s: newScoped[*document.Document]()} }

var _ document.Repository = (*DocumentStore)(nil)

// Create persists a new document.
func (ds *DocumentStore) Create(ctx context.Context, d *document.Document) error {
	tid, err := tenantID(ctx)
	if err != nil {
		return err
	}
	ds.s.mu.Lock()
	defer ds.s.mu.Unlock()
	cp := *d
	ds.s.bucket(tid)[d.ID] = &cp
	return nil
}

// Update modifies an existing document.
func (ds *DocumentStore) Update(ctx context.Context, d *document.Document) error {
	tid, err := tenantID(ctx)
	if err != nil {
		return err
	}
	ds.s.mu.Lock()
	defer ds.s.mu.Unlock()
	if _, ok := ds.s.bucket(tid)[d.ID]; !ok {
		return document.ErrDocumentNotFound
	}
	cp := *d
	ds.s.bucket(tid)[d.ID] = &cp
	return nil
}

// FindByID retrieves a document by id.
func (ds *DocumentStore) FindByID(ctx context.Context, id string) (*document.Document, error) {
	tid, err := tenantID(ctx)
	if err != nil {
		return nil, err
	}
	ds.s.mu.RLock()
	defer ds.s.mu.RUnlock()
	d, ok := ds.s.bucket(tid)[id]
	if !ok {
		return nil, document.ErrDocumentNotFound
	}
	cp := *d
	return &cp, nil
}

// FindByPublicID retrieves a document by public uuid.
func (ds *DocumentStore) FindByPublicID(ctx context.Context, publicID string) (*document.Document, error) {
	tid, err := tenantID(ctx)
	if err != nil {
		return nil, err
	}
	ds.s.mu.RLock()
	defer ds.s.mu.RUnlock()
	for _, d := range ds.s.bucket(tid) {
		if d.PublicID == publicID {
			cp := *d
			return &cp, nil
		}
	}
	return nil, document.ErrDocumentNotFound
}

// FindExpired retrieves non-deleted documents created before the cutoff.
func (ds *DocumentStore) FindExpired(ctx context.Context, cutoff time.Time, limit int) ([]*document.Document, error) {
	tid, err := tenantID(ctx)
	if err != nil {
		return nil, err
	}
	ds.s.mu.RLock()
	defer ds.s.mu.RUnlock()
	var out []*document.Document
	for _, d := range ds.s.bucket(tid) {
		if d.DeletedAt == nil && d.CreatedAt.Before(cutoff) {
			cp := *d
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// JobStore is an in-memory tenant-scoped job repository.
type JobStore struct{ s *scoped[*job.Job] }

// NewJobStore creates an empty job store.
func NewJobStore() *JobStore { return &JobStore{s: newScoped[*job.Job]()} }

var _ job.Repository = (*JobStore)(nil)

// Create persists a new job.
func (js *JobStore) Create(ctx context.Context, j *job.Job) error {
	tid, err := tenantID(ctx)
	if err != nil {
		return err
	}
	js.s.mu.Lock()
	defer js.s.mu.Unlock()
	cp := *j
	js.s.bucket(tid)[j.ID] = &cp
	return nil
}

// Update modifies an existing job.
func (js *JobStore) Update(ctx context.Context, j *job.Job) error {
	tid, err := tenantID(ctx)
	if err != nil {
		return err
	}
	js.s.mu.Lock()
	defer js.s.mu.Unlock()
	if _, ok := js.s.bucket(tid)[j.ID]; !ok {
		return job.ErrJobNotFound
	}
	cp := *j
	js.s.bucket(tid)[j.ID] = &cp
	return nil
}

// FindByID retrieves a job by id.
func (js *JobStore) FindByID(ctx context.Context, id string) (*job.Job, error) {
	tid, err := tenantID(ctx)
	if err != nil {
		return nil, err
	}
	js.s.mu.RLock()
	defer js.s.mu.RUnlock()
	j, ok := js.s.bucket(tid)[id]
	if !ok {
		return nil, job.ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

// FindByPublicID retrieves a job by public uuid.
func (js *JobStore) FindByPublicID(ctx context.Context, publicID string) (*job.Job, error) {
	tid, err := tenantID(ctx)
	if err != nil {
		return nil, err
	}
	js.s.mu.RLock()
	defer js.s.mu.RUnlock()
	for _, j := range js.s.bucket(tid) {
		if j.PublicID == publicID {
			cp := *j
			return &cp, nil
		}
	}
	return nil, job.ErrJobNotFound
}

// FindActiveByDocument retrieves the single non-terminal job for a document.
func (js *JobStore) FindActiveByDocument(ctx context.Context, documentID string) (*job.Job, error) {
	tid, err := tenantID(ctx)
	if err != nil {
		return nil, err
	}
	js.s.mu.RLock()
	defer js.s.mu.RUnlock()
	for _, j := range js.s.bucket(tid) {
		if j.DocumentID == documentID && !j.IsTerminal() {
			cp := *j
			return &cp, nil
		}
	}
	return nil, job.ErrJobNotFound
}

// ProgressStore is an in-memory tenant-scoped progress repository keyed by
// job id.
type ProgressStore struct{ s *scoped[*job.Progress] }

// NewProgressStore creates an empty progress store.
func NewProgressStore() *ProgressStore { return &ProgressStore{s: newScoped[*job.Progress]()} }

var _ job.ProgressRepository = (*ProgressStore)(nil)

// Create persists the progress row for a job.
func (ps *ProgressStore) Create(ctx context.Context, p *job.Progress) error {
	tid, err := tenantID(ctx)
	if err != nil {
		return err
	}
	ps.s.mu.Lock()
	defer ps.s.mu.Unlock()
	cp := *p
	ps.s.bucket(tid)[p.JobID] = &cp
	return nil
}

// Update modifies the progress row.
func (ps *ProgressStore) Update(ctx context.Context, p *job.Progress) error {
	tid, err := tenantID(ctx)
	if err != nil {
		return err
	}
	ps.s.mu.Lock()
	defer ps.s.mu.Unlock()
	if _, ok := ps.s.bucket(tid)[p.JobID]; !ok {
		return job.ErrProgressNotFound
	}
	cp := *p
	ps.s.bucket(tid)[p.JobID] = &cp
	return nil
}

// FindByJobID retrieves the progress row for a job.
func (ps *ProgressStore) FindByJobID(ctx context.Context, jobID string) (*job.Progress, error) {
	tid, err := tenantID(ctx)
	if err != nil {
		return nil, err
	}
	ps.s.mu.RLock()
	defer ps.s.mu.RUnlock()
	p, ok := ps.s.bucket(tid)[jobID]
	if !ok {
		return nil, job.ErrProgressNotFound
	}
	cp := *p
	return &cp, nil
}

// ExecutionStore is an in-memory tenant-scoped execution record repository.
type ExecutionStore struct{ s *scoped[*execution.Record] }

// NewExecutionStore creates an empty execution store.
func NewExecutionStore() *ExecutionStore { return &ExecutionStore{s: newScoped[*execution.Record]()} }

var _ execution.Repository = (*ExecutionStore)(nil)

// Create persists a new execution record.
func (es *ExecutionStore) Create(ctx context.Context, r *execution.Record) error {
	tid, err := tenantID(ctx)
	if err != nil {
		return err
	}
	es.s.mu.Lock()
	defer es.s.mu.Unlock()
	cp := *r
	es.s.bucket(tid)[r.ID] = &cp
	return nil
}

// Update modifies an existing execution record.
func (es *ExecutionStore) Update(ctx context.Context, r *execution.Record) error {
	tid, err := tenantID(ctx)
	if err != nil {
		return err
	}
	es.s.mu.Lock()
	defer es.s.mu.Unlock()
	if _, ok := es.s.bucket(tid)[r.ID]; !ok {
		return execution.ErrRecordNotFound
	}
	cp := *r
	es.s.bucket(tid)[r.ID] = &cp
	return nil
}

// FindByID retrieves a record by id.
func (es *ExecutionStore) FindByID(ctx context.Context, id string) (*execution.Record, error) {
	tid, err := tenantID(ctx)
	if err != nil {
		return nil, err
	}
	es.s.mu.RLock()
	defer es.s.mu.RUnlock()
	r, ok := es.s.bucket(tid)[id]
	if !ok {
		return nil, execution.ErrRecordNotFound
	}
	cp := *r
	return &cp, nil
}

// FindByJobID retrieves all records for a job ordered by step index.
func (es *ExecutionStore) FindByJobID(ctx context.Context, jobID string) ([]*execution.Record, error) {
	tid, err := tenantID(ctx)
	if err != nil {
		return nil, err
	}
	es.s.mu.RLock()
	defer es.s.mu.RUnlock()
	var out []*execution.Record
	for _, r := range es.s.bucket(tid) {
		if r.JobID == jobID {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StepIndex != out[j].StepIndex {
			return out[i].StepIndex < out[j].StepIndex
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// FindByJobAndStep retrieves the latest record for a step of a job.
func (es *ExecutionStore) FindByJobAndStep(ctx context.Context, jobID string, stepIndex int) (*execution.Record, error) {
	tid, err := tenantID(ctx)
	if err != nil {
		return nil, err
	}
	es.s.mu.RLock()
	defer es.s.mu.RUnlock()
	var latest *execution.Record
	for _, r := range es.s.bucket(tid) {
		if r.JobID == jobID && r.StepIndex == stepIndex {
			if latest == nil || r.CreatedAt.After(latest.CreatedAt) || (r.CreatedAt.Equal(latest.CreatedAt) && r.ID > latest.ID) {
				latest = r
			}
		}
	}
	if latest == nil {
		return nil, execution.ErrRecordNotFound
	}
	cp := *latest
	return &cp, nil
}

// FindLatestByDocumentAndCategory is unsupported in memory without a join
// to jobs; the document's jobs must be consulted by the caller.
func (es *ExecutionStore) FindLatestByDocumentAndCategory(ctx context.Context, documentID, category string) (*execution.Record, error) {
	return nil, execution.ErrRecordNotFound
}

// CredentialStore is an in-memory tenant-scoped credential repository.
type CredentialStore struct{ s *scoped[*credential.Credential] }

// NewCredentialStore creates an empty credential store.
func NewCredentialStore() *CredentialStore {
	return &CredentialStore{s: newScoped[*credential.Credential]()}
}

var _ credential.Repository = (*CredentialStore)(nil)

// Create persists a new credential.
func (cs *CredentialStore) Create(ctx context.Context, c *credential.Credential) error {
	tid, err := tenantID(ctx)
	if err != nil {
		return err
	}
	cs.s.mu.Lock()
	defer cs.s.mu.Unlock()
	cp := *c
	cs.s.bucket(tid)[c.ID] = &cp
	return nil
}

// Update modifies an existing credential.
func (cs *CredentialStore) Update(ctx context.Context, c *credential.Credential) error {
	tid, err := tenantID(ctx)
	if err != nil {
		return err
	}
	cs.s.mu.Lock()
	defer cs.s.mu.Unlock()
	if _, ok := cs.s.bucket(tid)[c.ID]; !ok {
		return credential.ErrCredentialNotFound
	}
	cp := *c
	cs.s.bucket(tid)[c.ID] = &cp
	return nil
}

// FindForScope retrieves the credential for (scopeType, scopeID, key).
func (cs *CredentialStore) FindForScope(ctx context.Context, scopeType credential.ScopeType, scopeID *string, key string) (*credential.Credential, error) {
	tid, err := tenantID(ctx)
	if err != nil {
		return nil, err
	}
	cs.s.mu.RLock()
	defer cs.s.mu.RUnlock()
	for _, c := range cs.s.bucket(tid) {
		if c.ScopeType != scopeType || c.Key != key {
			continue
		}
		if scopeType == credential.ScopeSystem {
			cp := *c
			return &cp, nil
		}
		if c.ScopeID != nil && scopeID != nil && *c.ScopeID == *scopeID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, credential.ErrCredentialNotFound
}

// TouchLastUsed records a resolution hit.
func (cs *CredentialStore) TouchLastUsed(ctx context.Context, id string) error {
	tid, err := tenantID(ctx)
	if err != nil {
		return err
	}
	cs.s.mu.Lock()
	defer cs.s.mu.Unlock()
	c, ok := cs.s.bucket(tid)[id]
	if !ok {
		return credential.ErrCredentialNotFound
	}
	now := time.Now().UTC()
	c.LastUsedAt = &now
	return nil
}

// ProcessorStore is an in-memory tenant-scoped processor catalog.
type ProcessorStore struct{ s *scoped[*processor.Entry] }

// NewProcessorStore creates an empty processor store.
func NewProcessorStore() *ProcessorStore { return &ProcessorStore{s: newScoped[*processor.Entry]()} }

var _ processor.Repository = (*ProcessorStore)(nil)

// Create persists a new catalog entry.
func (ps *ProcessorStore) Create(ctx context.Context, e *processor.Entry) error {
	tid, err := tenantID(ctx)
	if err != nil {
		return err
	}
	ps.s.mu.Lock()
	defer ps.s.mu.Unlock()
	cp := *e
	ps.s.bucket(tid)[e.ID] = &cp
	return nil
}

// Update modifies an existing entry.
func (ps *ProcessorStore) Update(ctx context.Context, e *processor.Entry) error {
	tid, err := tenantID(ctx)
	if err != nil {
		return err
	}
	ps.s.mu.Lock()
	defer ps.s.mu.Unlock()
	if _, ok := ps.s.bucket(tid)[e.ID]; !ok {
		return processor.ErrProcessorNotFound
	}
	cp := *e
	ps.s.bucket(tid)[e.ID] = &cp
	return nil
}

// FindBySlug retrieves an entry by slug.
func (ps *ProcessorStore) FindBySlug(ctx context.Context, slug string) (*processor.Entry, error) {
	tid, err := tenantID(ctx)
	if err != nil {
		return nil, err
	}
	ps.s.mu.RLock()
	defer ps.s.mu.RUnlock()
	for _, e := range ps.s.bucket(tid) {
		if e.Slug == slug {
			cp := *e
			return &cp, nil
		}
	}
	return nil, processor.ErrProcessorNotFound
}

// FindByID retrieves an entry by id.
func (ps *ProcessorStore) FindByID(ctx context.Context, id string) (*processor.Entry, error) {
	tid, err := tenantID(ctx)
	if err != nil {
		return nil, err
	}
	ps.s.mu.RLock()
	defer ps.s.mu.RUnlock()
	e, ok := ps.s.bucket(tid)[id]
	if !ok {
		return nil, processor.ErrProcessorNotFound
	}
	cp := *e
	return &cp, nil
}

// ListActive retrieves all active catalog entries.
func (ps *ProcessorStore) ListActive(ctx context.Context) ([]*processor.Entry, error) {
	tid, err := tenantID(ctx)
	if err != nil {
		return nil, err
	}
	ps.s.mu.RLock()
	defer ps.s.mu.RUnlock()
	var out []*processor.Entry
	for _, e := range ps.s.bucket(tid) {
		if e.IsActive {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

// WorkflowStore is an in-memory tenant-scoped workflow repository.
type WorkflowStore struct{ s *scoped[*workflow.Workflow] }

// NewWorkflowStore creates an empty workflow store.
func NewWorkflowStore() *WorkflowStore { return &WorkflowStore{s: newScoped[*workflow.Workflow]()} }

var _ workflow.Repository = (*WorkflowStore)(nil)

// Create persists a new workflow.
func (ws *WorkflowStore) Create(ctx context.Context, w *workflow.Workflow) error {
	tid, err := tenantID(ctx)
	if err != nil {
		return err
	}
	ws.s.mu.Lock()
	defer ws.s.mu.Unlock()
	cp := *w
	ws.s.bucket(tid)[w.ID] = &cp
	return nil
}

// Update persists the workflow's current state.
func (ws *WorkflowStore) Update(ctx context.Context, w *workflow.Workflow) error {
	tid, err := tenantID(ctx)
	if err != nil {
		return err
	}
	ws.s.mu.Lock()
	defer ws.s.mu.Unlock()
	if _, ok := ws.s.bucket(tid)[w.ID]; !ok {
		return workflow.ErrWorkflowNotFound
	}
	cp := *w
	ws.s.bucket(tid)[w.ID] = &cp
	return nil
}

// FindByID retrieves a workflow by id.
func (ws *WorkflowStore) FindByID(ctx context.Context, id string) (*workflow.Workflow, error) {
	tid, err := tenantID(ctx)
	if err != nil {
		return nil, err
	}
	ws.s.mu.RLock()
	defer ws.s.mu.RUnlock()
	w, ok := ws.s.bucket(tid)[id]
	if !ok {
		return nil, workflow.ErrWorkflowNotFound
	}
	cp := *w
	return &cp, nil
}

// FindByJobID retrieves the latest workflow driving a job.
func (ws *WorkflowStore) FindByJobID(ctx context.Context, jobID string) (*workflow.Workflow, error) {
	tid, err := tenantID(ctx)
	if err != nil {
		return nil, err
	}
	ws.s.mu.RLock()
	defer ws.s.mu.RUnlock()
	var latest *workflow.Workflow
	for _, w := range ws.s.bucket(tid) {
		if w.JobID == jobID {
			if latest == nil || w.CreatedAt.After(latest.CreatedAt) || (w.CreatedAt.Equal(latest.CreatedAt) && w.ID > latest.ID) {
				latest = w
			}
		}
	}
	if latest == nil {
		return nil, workflow.ErrWorkflowNotFound
	}
	cp := *latest
	return &cp, nil
}

// FindResumable retrieves all non-terminal workflows.
func (ws *WorkflowStore) FindResumable(ctx context.Context) ([]*workflow.Workflow, error) {
	tid, err := tenantID(ctx)
	if err != nil {
		return nil, err
	}
	ws.s.mu.RLock()
	defer ws.s.mu.RUnlock()
	var out []*workflow.Workflow
	for _, w := range ws.s.bucket(tid) {
		if !w.State.IsTerminal() {
			cp := *w
			out = append(out, &cp)
		}
	}
	return out, nil
}

// AuditStore is an in-memory tenant-scoped, append-only audit log.
type AuditStore struct{ s *scoped[*audit.Entry] }

// NewAuditStore creates an empty audit store.
func NewAuditStore() *AuditStore { return &AuditStore{s: newScoped[*audit.Entry]()} }

var _ audit.Repository = (*AuditStore)(nil)

// Create appends an entry.
func (as *AuditStore) Create(ctx context.Context, e *audit.Entry) error {
	tid, err := tenantID(ctx)
	if err != nil {
		return err
	}
	as.s.mu.Lock()
	defer as.s.mu.Unlock()
	cp := *e
	as.s.bucket(tid)[e.ID] = &cp
	return nil
}

// FindByAuditable lists entries for one entity, newest first.
func (as *AuditStore) FindByAuditable(ctx context.Context, t audit.AuditableType, id string) ([]*audit.Entry, error) {
	tid, err := tenantID(ctx)
	if err != nil {
		return nil, err
	}
	as.s.mu.RLock()
	defer as.s.mu.RUnlock()
	var out []*audit.Entry
	for _, e := range as.s.bucket(tid) {
		if e.AuditableType == t && e.AuditableID == id {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// UsageStore is an in-memory tenant-scoped, append-only usage ledger.
type UsageStore struct{ s *scoped[*usage.Event] }

// NewUsageStore creates an empty usage store.
func NewUsageStore() *UsageStore { return &UsageStore{s: newScoped[*usage.Event]()} }

var _ usage.Repository = (*UsageStore)(nil)

// Create appends an event.
func (us *UsageStore) Create(ctx context.Context, e *usage.Event) error {
	tid, err := tenantID(ctx)
	if err != nil {
		return err
	}
	us.s.mu.Lock()
	defer us.s.mu.Unlock()
	cp := *e
	us.s.bucket(tid)[e.ID] = &cp
	return nil
}

// FindByCampaign lists events for a campaign within a time range.
func (us *UsageStore) FindByCampaign(ctx context.Context, campaignID string, from, to time.Time) ([]*usage.Event, error) {
	tid, err := tenantID(ctx)
	if err != nil {
		return nil, err
	}
	us.s.mu.RLock()
	defer us.s.mu.RUnlock()
	var out []*usage.Event
	for _, e := range us.s.bucket(tid) {
		if e.CampaignID == campaignID && !e.RecordedAt.Before(from) && e.RecordedAt.Before(to) {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecordedAt.Before(out[j].RecordedAt) })
	return out, nil
}
