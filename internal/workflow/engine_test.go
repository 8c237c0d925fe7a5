package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"leadgen-server/internal/leads"
	"leadgen-server/internal/observability"
	"leadgen-server/internal/progress"
)

type fakeFinder struct {
	leads []leads.Lead
	err   error
	// cancelOnReturn, when set, is called just before returning so tests can
	// simulate a cancellation arriving while the stage runs.
	cancelOnReturn context.CancelFunc
}

func (f *fakeFinder) FindLeads(ctx context.Context, query SearchQuery) ([]leads.Lead, error) {
	if f.cancelOnReturn != nil {
		f.cancelOnReturn()
	}
	return f.leads, f.err
}

type fakeEmailFinder struct {
	mu       sync.Mutex
	emails   map[string]string
	failFor  map[string]error
	attempts map[string]int
	delays   map[string]time.Duration
}

func (f *fakeEmailFinder) FindEmail(ctx context.Context, lead leads.Lead) (string, error) {
	f.mu.Lock()
	if f.attempts == nil {
		f.attempts = make(map[string]int)
	}
	f.attempts[lead.Name]++
	delay := f.delays[lead.Name]
	err := f.failFor[lead.Name]
	email := f.emails[lead.Name]
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return "", err
	}
	return email, nil
}

type fakeValidator struct {
	mu          sync.Mutex
	results     map[string]leads.ValidationResult
	failFor     map[string]error
	failOnce    map[string]error
	attempts    map[string]int
	credMissing bool
}

func (f *fakeValidator) Validate(ctx context.Context, email string) (leads.ValidationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.attempts == nil {
		f.attempts = make(map[string]int)
	}
	f.attempts[email]++

	if f.credMissing {
		return leads.ValidationResult{}, fmt.Errorf("no API key configured: %w", ErrCredentialMissing)
	}
	if err, ok := f.failOnce[email]; ok && f.attempts[email] == 1 {
		return leads.ValidationResult{}, err
	}
	if err, ok := f.failFor[email]; ok {
		return leads.ValidationResult{}, err
	}
	if result, ok := f.results[email]; ok {
		return result, nil
	}
	return leads.ValidationResult{Email: email, IsValid: true, Deliverability: leads.DeliverabilityHigh, Score: 80}, nil
}

type fakeExporter struct {
	mu       sync.Mutex
	err      error
	exported []leads.Lead
	summary  string
}

func (f *fakeExporter) Export(ctx context.Context, runID string, items []leads.Lead, summary string) (leads.ExportReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return leads.ExportReceipt{}, f.err
	}
	f.exported = append([]leads.Lead(nil), items...)
	f.summary = summary
	return leads.ExportReceipt{Destination: "xlsx", Location: "/tmp/" + runID + ".xlsx", RowCount: len(items)}, nil
}

type fakeMetrics struct {
	mu     sync.Mutex
	stages []string
	counts []int
}

func (f *fakeMetrics) RecordStage(stage string, duration time.Duration, outcome string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stages = append(f.stages, stage+":"+outcome)
}

func (f *fakeMetrics) RecordCounts(found, emailsFound, validated int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts = []int{found, emailsFound, validated}
}

func testInput(t *testing.T, maxLeads int) leads.CampaignInput {
	t.Helper()
	input, err := leads.NewCampaignInput("b2b saas founders", []string{"CTO"}, "intro outreach", maxLeads, 2)
	if err != nil {
		t.Fatalf("failed to build input: %v", err)
	}
	return input
}

func newTestEngine(finder LeadFinder, emails EmailFinder, validator EmailValidator, exporter Exporter) (*Engine, *progress.Tracker, *fakeMetrics) {
	tracker := progress.NewTracker()
	metrics := &fakeMetrics{}
	logger := observability.NewLogger()
	engine := New(finder, emails, validator, exporter, metrics, tracker,
		Options{StageTimeout: 5 * time.Second, RetryAttempts: 1, ItemConcurrency: 4}, logger)
	return engine, tracker, metrics
}

func namedLeads(names ...string) []leads.Lead {
	items := make([]leads.Lead, len(names))
	for i, name := range names {
		items[i] = leads.Lead{Name: name, Company: "Acme"}
	}
	return items
}

func TestRun_HappyPath(t *testing.T) {
	finder := &fakeFinder{leads: namedLeads("Ann", "Bob", "Cat")}
	emails := &fakeEmailFinder{emails: map[string]string{
		"Ann": "ann@acme.com", "Bob": "bob@acme.com", "Cat": "cat@acme.com",
	}}
	exporter := &fakeExporter{}
	engine, tracker, metrics := newTestEngine(finder, emails, &fakeValidator{}, exporter)

	result, err := engine.Run(context.Background(), "run-1", testInput(t, 10))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if result.Counts.Found != 3 || result.Counts.EmailsFound != 3 || result.Counts.ValidatedValid != 3 {
		t.Errorf("unexpected counts: %+v", result.Counts)
	}
	if result.Export == nil || result.Export.RowCount != 3 {
		t.Errorf("expected export receipt for 3 rows, got %+v", result.Export)
	}
	if len(exporter.exported) != 3 {
		t.Errorf("expected exporter to receive 3 leads, got %d", len(exporter.exported))
	}

	snap, _ := tracker.Snapshot("run-1")
	if snap.CurrentStage != progress.StageDone || snap.Percent != 100 {
		t.Errorf("expected done/100, got %v/%d", snap.CurrentStage, snap.Percent)
	}

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	if len(metrics.counts) != 3 || metrics.counts[0] != 3 {
		t.Errorf("expected counts recorded, got %v", metrics.counts)
	}
}

func TestRun_DedupKeepsFirstOccurrence(t *testing.T) {
	finder := &fakeFinder{leads: []leads.Lead{
		{Name: "Ann", Company: "Acme", Title: "CTO"},
		{Name: "ann", Company: "ACME", Title: "VP"},
		{Name: "Bob", Company: "Acme"},
	}}
	engine, _, _ := newTestEngine(finder, &fakeEmailFinder{}, &fakeValidator{}, &fakeExporter{})

	result, err := engine.Run(context.Background(), "run-1", testInput(t, 10))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if result.Counts.Found != 2 {
		t.Fatalf("expected 2 leads after dedup, got %d", result.Counts.Found)
	}
	if result.Counts.Duplicates != 1 {
		t.Errorf("expected dedup counter 1, got %d", result.Counts.Duplicates)
	}
	if result.Leads[0].Title != "CTO" {
		t.Errorf("expected first occurrence kept, got title %q", result.Leads[0].Title)
	}
}

func TestRun_BlankNameDroppedBeforeLimit(t *testing.T) {
	finder := &fakeFinder{leads: []leads.Lead{
		{Name: "  ", Company: "Acme"},
		{Name: "Ann", Company: "Acme"},
		{Name: "Bob", Company: "Acme"},
	}}
	engine, _, _ := newTestEngine(finder, &fakeEmailFinder{}, &fakeValidator{}, &fakeExporter{})

	result, err := engine.Run(context.Background(), "run-1", testInput(t, 2))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result.Counts.Found != 2 {
		t.Fatalf("expected blank-name lead dropped before counting, got %d leads", result.Counts.Found)
	}
	if result.Leads[0].Name != "Ann" || result.Leads[1].Name != "Bob" {
		t.Errorf("unexpected leads: %+v", result.Leads)
	}
}

func TestRun_MaxLeadsTruncation(t *testing.T) {
	names := make([]string, 10)
	for i := range names {
		names[i] = fmt.Sprintf("Lead %d", i)
	}
	finder := &fakeFinder{leads: namedLeads(names...)}
	engine, _, _ := newTestEngine(finder, &fakeEmailFinder{}, &fakeValidator{}, &fakeExporter{})

	result, err := engine.Run(context.Background(), "run-1", testInput(t, 3))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if len(result.Leads) != 3 {
		t.Fatalf("expected exactly 3 leads, got %d", len(result.Leads))
	}
	for i := 0; i < 3; i++ {
		want := fmt.Sprintf("Lead %d", i)
		if result.Leads[i].Name != want {
			t.Errorf("position %d: expected %q, got %q", i, want, result.Leads[i].Name)
		}
	}
}

func TestRun_OrderPreservedRegardlessOfCompletionOrder(t *testing.T) {
	names := []string{"Ann", "Bob", "Cat", "Dan", "Eve"}
	finder := &fakeFinder{leads: namedLeads(names...)}

	// Earlier leads finish last, so completion order is reversed.
	emails := &fakeEmailFinder{
		emails: map[string]string{},
		delays: map[string]time.Duration{},
	}
	for i, name := range names {
		emails.emails[name] = strings.ToLower(name) + "@acme.com"
		emails.delays[name] = time.Duration(len(names)-i) * 20 * time.Millisecond
	}

	engine, _, _ := newTestEngine(finder, emails, &fakeValidator{}, &fakeExporter{})

	result, err := engine.Run(context.Background(), "run-1", testInput(t, 10))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	for i, name := range names {
		if result.Leads[i].Name != name {
			t.Errorf("position %d: expected %q, got %q", i, name, result.Leads[i].Name)
		}
	}
}

func TestRun_PartialEmailFailureStillCompletes(t *testing.T) {
	names := []string{"Ann", "Bob", "Cat", "Dan", "Eve"}
	finder := &fakeFinder{leads: namedLeads(names...)}
	emails := &fakeEmailFinder{
		emails: map[string]string{
			"Ann": "ann@acme.com", "Cat": "cat@acme.com", "Eve": "eve@acme.com",
		},
		failFor: map[string]error{
			"Bob": fmt.Errorf("rate limited: %w", ErrTransient),
			"Dan": fmt.Errorf("rate limited: %w", ErrTransient),
		},
	}
	engine, tracker, _ := newTestEngine(finder, emails, &fakeValidator{}, &fakeExporter{})

	result, err := engine.Run(context.Background(), "run-1", testInput(t, 10))
	if err != nil {
		t.Fatalf("expected run to degrade rather than fail, got %v", err)
	}

	if result.Counts.Found != 5 {
		t.Errorf("expected all 5 leads retained, got %d", result.Counts.Found)
	}
	if result.Counts.EmailsFound != 3 {
		t.Errorf("expected 3 emails found, got %d", result.Counts.EmailsFound)
	}
	for _, lead := range result.Leads {
		if (lead.Name == "Bob" || lead.Name == "Dan") && lead.Email != "" {
			t.Errorf("expected no email for %q", lead.Name)
		}
	}

	snap, _ := tracker.Snapshot("run-1")
	if snap.CurrentStage != progress.StageDone {
		t.Errorf("expected done, got %v", snap.CurrentStage)
	}
}

func TestRun_TransientEmailFailureIsRetried(t *testing.T) {
	finder := &fakeFinder{leads: namedLeads("Ann")}
	emails := &fakeEmailFinder{
		emails:  map[string]string{"Ann": "ann@acme.com"},
		failFor: map[string]error{"Ann": fmt.Errorf("timeout: %w", ErrTransient)},
	}
	engine, _, _ := newTestEngine(finder, emails, &fakeValidator{}, &fakeExporter{})

	if _, err := engine.Run(context.Background(), "run-1", testInput(t, 10)); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	emails.mu.Lock()
	defer emails.mu.Unlock()
	if emails.attempts["Ann"] != 2 {
		t.Errorf("expected 1 retry (2 attempts), got %d attempts", emails.attempts["Ann"])
	}
}

func TestRun_HardSearchFailure(t *testing.T) {
	finder := &fakeFinder{err: errors.New("search backend unreachable")}
	engine, tracker, _ := newTestEngine(finder, &fakeEmailFinder{}, &fakeValidator{}, &fakeExporter{})

	_, err := engine.Run(context.Background(), "run-1", testInput(t, 10))
	if !errors.Is(err, ErrHardSearchFailure) {
		t.Fatalf("expected ErrHardSearchFailure, got %v", err)
	}
	if !strings.Contains(err.Error(), "search backend unreachable") {
		t.Errorf("expected reason surfaced verbatim, got %q", err.Error())
	}

	snap, _ := tracker.Snapshot("run-1")
	if snap.CurrentStage != progress.StageFailed {
		t.Errorf("expected failed, got %v", snap.CurrentStage)
	}
}

func TestRun_FinderErrorWithPartialResultsDegrades(t *testing.T) {
	finder := &fakeFinder{
		leads: namedLeads("Ann", "Bob"),
		err:   errors.New("second search pass failed"),
	}
	engine, _, _ := newTestEngine(finder, &fakeEmailFinder{}, &fakeValidator{}, &fakeExporter{})

	result, err := engine.Run(context.Background(), "run-1", testInput(t, 10))
	if err != nil {
		t.Fatalf("expected degrade, got %v", err)
	}
	if len(result.Warnings) == 0 || !strings.Contains(result.Warnings[0], "lead search degraded") {
		t.Errorf("expected degrade warning, got %v", result.Warnings)
	}
	if result.Counts.Found != 2 {
		t.Errorf("expected partial results used, got %d leads", result.Counts.Found)
	}
}

func TestRun_ValidatorTransientThenSuccess(t *testing.T) {
	finder := &fakeFinder{leads: namedLeads("Ann")}
	emails := &fakeEmailFinder{emails: map[string]string{"Ann": "ann@acme.com"}}
	validator := &fakeValidator{
		failOnce: map[string]error{"ann@acme.com": fmt.Errorf("timeout: %w", ErrTransient)},
		results: map[string]leads.ValidationResult{
			"ann@acme.com": {Email: "ann@acme.com", IsValid: true, Deliverability: leads.DeliverabilityHigh, Score: 95},
		},
	}
	engine, _, _ := newTestEngine(finder, emails, validator, &fakeExporter{})

	result, err := engine.Run(context.Background(), "run-1", testInput(t, 10))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result.Leads[0].ValidationStatus != leads.StatusValid {
		t.Errorf("expected valid after retry, got %v", result.Leads[0].ValidationStatus)
	}
}

func TestRun_ValidatorPersistentTransientMarksUnknown(t *testing.T) {
	finder := &fakeFinder{leads: namedLeads("Ann")}
	emails := &fakeEmailFinder{emails: map[string]string{"Ann": "ann@acme.com"}}
	validator := &fakeValidator{
		failFor: map[string]error{"ann@acme.com": fmt.Errorf("timeout: %w", ErrTransient)},
	}
	engine, _, _ := newTestEngine(finder, emails, validator, &fakeExporter{})

	result, err := engine.Run(context.Background(), "run-1", testInput(t, 10))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result.Leads[0].ValidationStatus != leads.StatusUnknown {
		t.Errorf("expected unknown, got %v", result.Leads[0].ValidationStatus)
	}
}

func TestRun_ValidatorCredentialMissingDegradesStage(t *testing.T) {
	finder := &fakeFinder{leads: namedLeads("Ann", "Bob")}
	emails := &fakeEmailFinder{emails: map[string]string{
		"Ann": "ann@acme.com", "Bob": "bob@acme.com",
	}}
	validator := &fakeValidator{credMissing: true}
	engine, tracker, _ := newTestEngine(finder, emails, validator, &fakeExporter{})

	result, err := engine.Run(context.Background(), "run-1", testInput(t, 10))
	if err != nil {
		t.Fatalf("expected degrade, got %v", err)
	}

	for _, lead := range result.Leads {
		if lead.ValidationStatus != leads.StatusUnknown {
			t.Errorf("lead %q: expected unknown, got %v", lead.Name, lead.ValidationStatus)
		}
	}
	if len(result.Warnings) == 0 || !strings.Contains(result.Warnings[0], "validation unavailable") {
		t.Errorf("expected validation warning, got %v", result.Warnings)
	}

	snap, _ := tracker.Snapshot("run-1")
	if snap.CurrentStage != progress.StageDone {
		t.Errorf("expected done despite degraded validation, got %v", snap.CurrentStage)
	}
}

func TestRun_ExportFailureIsNonFatal(t *testing.T) {
	finder := &fakeFinder{leads: namedLeads("Ann")}
	emails := &fakeEmailFinder{emails: map[string]string{"Ann": "ann@acme.com"}}
	exporter := &fakeExporter{err: errors.New("sheets quota exceeded")}
	engine, tracker, _ := newTestEngine(finder, emails, &fakeValidator{}, exporter)

	result, err := engine.Run(context.Background(), "run-1", testInput(t, 10))
	if err != nil {
		t.Fatalf("expected result despite export failure, got %v", err)
	}
	if result.Export != nil {
		t.Errorf("expected no export receipt, got %+v", result.Export)
	}
	found := false
	for _, w := range result.Warnings {
		if strings.Contains(w, "export failed") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected export warning, got %v", result.Warnings)
	}

	snap, _ := tracker.Snapshot("run-1")
	if snap.CurrentStage != progress.StageDone {
		t.Errorf("expected done, got %v", snap.CurrentStage)
	}
}

func TestRun_CancellationBetweenStages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	finder := &fakeFinder{leads: namedLeads("Ann"), cancelOnReturn: cancel}
	engine, tracker, _ := newTestEngine(finder, &fakeEmailFinder{}, &fakeValidator{}, &fakeExporter{})

	_, err := engine.Run(ctx, "run-1", testInput(t, 10))
	if !errors.Is(err, ErrRunCancelled) {
		t.Fatalf("expected ErrRunCancelled, got %v", err)
	}

	snap, _ := tracker.Snapshot("run-1")
	if snap.CurrentStage != progress.StageFailed {
		t.Errorf("expected failed terminal state, got %v", snap.CurrentStage)
	}
	if snap.LastMessage != "cancelled" {
		t.Errorf("expected cancelled message, got %q", snap.LastMessage)
	}
}

func TestRun_InvalidInputRejected(t *testing.T) {
	engine, _, _ := newTestEngine(&fakeFinder{}, &fakeEmailFinder{}, &fakeValidator{}, &fakeExporter{})

	_, err := engine.Run(context.Background(), "run-1", leads.CampaignInput{MaxLeads: 0, SearchDepth: 9})
	if !errors.Is(err, leads.ErrInvalidCampaignInput) {
		t.Fatalf("expected ErrInvalidCampaignInput, got %v", err)
	}
}

func TestRun_LeadsWithoutEmailStayUnvalidated(t *testing.T) {
	finder := &fakeFinder{leads: namedLeads("Ann", "Bob")}
	emails := &fakeEmailFinder{emails: map[string]string{"Ann": "ann@acme.com"}}
	engine, _, _ := newTestEngine(finder, emails, &fakeValidator{}, &fakeExporter{})

	result, err := engine.Run(context.Background(), "run-1", testInput(t, 10))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	for _, lead := range result.Leads {
		if lead.Name == "Bob" && lead.ValidationStatus != leads.StatusUnvalidated {
			t.Errorf("expected Bob unvalidated, got %v", lead.ValidationStatus)
		}
	}
}

func TestDedupeLeads(t *testing.T) {
	items := []leads.Lead{
		{Name: "Ann", Company: "Acme"},
		{Name: "Ann", Company: "Acme"},
		{Name: "", Company: "Acme"},
		{Name: "Bob", Company: ""},
		{Name: "Bob", Company: ""},
		{Name: "Cat", Company: "Beta"},
	}

	result, dups := dedupeLeads(items, 10)
	if len(result) != 3 {
		t.Fatalf("expected 3 leads, got %d", len(result))
	}
	if dups != 2 {
		t.Errorf("expected 2 duplicates, got %d", dups)
	}
}

// blockingEmailFinder never answers before its context dies.
type blockingEmailFinder struct{}

func (blockingEmailFinder) FindEmail(ctx context.Context, lead leads.Lead) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

// blockingValidator never answers before its context dies.
type blockingValidator struct{}

func (blockingValidator) Validate(ctx context.Context, email string) (leads.ValidationResult, error) {
	<-ctx.Done()
	return leads.ValidationResult{}, ctx.Err()
}

func TestRun_EmailFindingTimeoutDegrades(t *testing.T) {
	finder := &fakeFinder{leads: namedLeads("Ann", "Bob", "Cat")}
	tracker := progress.NewTracker()
	metrics := &fakeMetrics{}
	engine := New(finder, blockingEmailFinder{}, &fakeValidator{}, &fakeExporter{}, metrics, tracker,
		Options{StageTimeout: 100 * time.Millisecond, RetryAttempts: 1, ItemConcurrency: 1}, observability.NewLogger())

	result, err := engine.Run(context.Background(), "run-1", testInput(t, 10))
	if err != nil {
		t.Fatalf("expected run to degrade, not fail, got %v", err)
	}

	if result.Counts.EmailsFound != 0 {
		t.Errorf("expected no emails found, got %d", result.Counts.EmailsFound)
	}
	found := false
	for _, w := range result.Warnings {
		if strings.Contains(w, "email discovery timed out") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected discovery timeout warning, got %v", result.Warnings)
	}

	snap, _ := tracker.Snapshot("run-1")
	if snap.CurrentStage != progress.StageDone {
		t.Errorf("expected run to finish Done, got %v", snap.CurrentStage)
	}

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	degraded := false
	for _, s := range metrics.stages {
		if s == "email_finding:degraded" {
			degraded = true
		}
	}
	if !degraded {
		t.Errorf("expected email_finding recorded degraded, got %v", metrics.stages)
	}
}

func TestRun_ValidationTimeoutMarksUnknown(t *testing.T) {
	finder := &fakeFinder{leads: namedLeads("Ann", "Bob", "Cat")}
	emails := &fakeEmailFinder{emails: map[string]string{
		"Ann": "ann@acme.com", "Bob": "bob@acme.com", "Cat": "cat@acme.com",
	}}
	tracker := progress.NewTracker()
	metrics := &fakeMetrics{}
	engine := New(finder, emails, blockingValidator{}, &fakeExporter{}, metrics, tracker,
		Options{StageTimeout: 100 * time.Millisecond, RetryAttempts: 1, ItemConcurrency: 1}, observability.NewLogger())

	result, err := engine.Run(context.Background(), "run-1", testInput(t, 10))
	if err != nil {
		t.Fatalf("expected run to degrade, not fail, got %v", err)
	}

	for _, lead := range result.Leads {
		if lead.ValidationStatus != leads.StatusUnknown {
			t.Errorf("lead %q: expected unknown after stage timeout, got %v", lead.Name, lead.ValidationStatus)
		}
	}
	found := false
	for _, w := range result.Warnings {
		if strings.Contains(w, "email validation timed out") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected validation timeout warning, got %v", result.Warnings)
	}

	snap, _ := tracker.Snapshot("run-1")
	if snap.CurrentStage != progress.StageDone {
		t.Errorf("expected run to finish Done, got %v", snap.CurrentStage)
	}
}
