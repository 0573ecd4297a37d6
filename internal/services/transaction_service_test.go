package services

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"moviments/internal/batch"
	"moviments/internal/classify"
	"moviments/internal/core"
	"moviments/internal/ledger"
	"moviments/internal/store"
	"moviments/internal/store/memory"
)

type fakeLedger struct {
	uploads  map[string][]byte
	marked   []int
	enqueued []core.Transaction
	closed   bool
}

func newFakeLedger() *fakeLedger { return &fakeLedger{uploads: map[string][]byte{}} }

func (f *fakeLedger) SaveUpload(_ context.Context, name string, contents []byte) ([]byte, error) {
	if prev, ok := f.uploads[name]; ok {
		merged, _, err := batch.CarryLoaded(prev, contents)
		if err != nil {
			return nil, err
		}
		contents = merged
	}
	f.uploads[name] = contents
	return contents, nil
}

func (f *fakeLedger) GetUpload(_ context.Context, name string) ([]byte, error) {
	b, ok := f.uploads[name]
	if !ok {
		return nil, errors.New("not found")
	}
	return b, nil
}

func (f *fakeLedger) MarkRowLoaded(_ context.Context, name string, index int, check batch.RowCheck) error {
	b, ok := f.uploads[name]
	if !ok {
		return nil
	}
	out, err := batch.MarkLoaded(b, index, check)
	if err != nil {
		return err
	}
	f.uploads[name] = out
	f.marked = append(f.marked, index)
	return nil
}

func (f *fakeLedger) Enqueue(_ context.Context, tx core.Transaction) (string, error) {
	f.enqueued = append(f.enqueued, tx)
	return "entry-1", nil
}

func (f *fakeLedger) Close() error {
	f.closed = true
	return nil
}

type fakePublisher struct {
	ids []string
	err error
}

func (p *fakePublisher) PublishRecordSync(_ context.Context, id string) error {
	p.ids = append(p.ids, id)
	return p.err
}

const statement = "DATE,CONCEPT,IMPORT\n" +
	"01/05/2025,TARGETA *9921 CONDIS SUPERMERCAT,\"-15,30\"\n" +
	"03/05/2025,NOMINA EMPRESA SA,1500.00\n"

func newService(l Ledger, p Publisher) (*TransactionService, *memory.Store) {
	mem := memory.New(memory.Defaults(2025))
	return NewTransactionService(Deps{
		Store:      mem,
		References: store.NewCachedReader(mem, time.Minute),
		Processor:  batch.NewProcessor(classify.New(classify.DefaultRules())),
		Ledger:     l,
		Publisher:  p,
	}), mem
}

func TestProcessThenSaveMarksRow(t *testing.T) {
	l := newFakeLedger()
	svc, mem := newService(l, nil)
	ctx := context.Background()

	res, err := svc.Process(ctx, "may.csv", []byte(statement))
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if res.Stats.Emitted != 2 {
		t.Fatalf("stats = %+v", res.Stats)
	}
	expense := res.Entries[0]
	if expense.ExpenseTypeID == "" || expense.AccountID == "" || expense.MonthID == "" {
		t.Errorf("expense not categorized: %+v", expense)
	}

	ref, err := svc.Save(ctx, expense)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if ref != "mem:expense:1" {
		t.Errorf("ref = %q", ref)
	}
	if e, _, _ := mem.Counts(); e != 1 {
		t.Errorf("expenses stored = %d", e)
	}
	if len(l.marked) != 1 || l.marked[0] != expense.SourceRowIndex {
		t.Errorf("marked = %v", l.marked)
	}

	// A later upload of the same file keeps the mark.
	res, err = svc.Process(ctx, "may.csv", []byte(statement))
	if err != nil {
		t.Fatal(err)
	}
	if res.Stats.AlreadyLoaded != 1 || res.Stats.Emitted != 1 {
		t.Errorf("stats after save = %+v", res.Stats)
	}
}

func TestProcessReuploadClassifiesNewContents(t *testing.T) {
	l, err := ledger.Open(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { l.Close() })
	svc, _ := newService(l, nil)
	ctx := context.Background()

	may := "DATE,CONCEPT,IMPORT\n01/05/2025,TARGETA *1 CONDIS,-10\n"
	res, err := svc.Process(ctx, "movements.csv", []byte(may))
	if err != nil {
		t.Fatalf("Process(may) error = %v", err)
	}
	if _, err := svc.Save(ctx, res.Entries[0]); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	// The bank exports June under the same name, repeating the May row.
	june := "DATE,CONCEPT,IMPORT\n" +
		"01/05/2025,TARGETA *1 CONDIS,-10\n" +
		"02/06/2025,TARGETA *2 BONPREU,-20\n" +
		"05/06/2025,TARGETA *3 CAPRABO,-5\n"
	res, err = svc.Process(ctx, "movements.csv", []byte(june))
	if err != nil {
		t.Fatalf("Process(june) error = %v", err)
	}
	if res.Stats.Total != 3 || res.Stats.AlreadyLoaded != 1 || res.Stats.Emitted != 2 {
		t.Fatalf("stats = %+v", res.Stats)
	}
	for _, e := range res.Entries {
		if !strings.HasPrefix(e.Date, "2025-06-") {
			t.Errorf("entry from the old copy: %+v", e)
		}
	}
}

func TestSaveWithoutSource(t *testing.T) {
	l := newFakeLedger()
	svc, mem := newService(l, nil)
	tx := core.Transaction{Type: core.KindExpense, Date: "2025-05-03", Amount: "4.5", Concept: "CAFE", Name: "CAFE"}
	if _, err := svc.Save(context.Background(), tx); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if e, _, _ := mem.Counts(); e != 1 {
		t.Errorf("expenses stored = %d", e)
	}
	if len(l.marked) != 0 {
		t.Errorf("marked = %v, want none", l.marked)
	}
}

func TestSaveQueuesWithPublisher(t *testing.T) {
	l := newFakeLedger()
	pub := &fakePublisher{err: errors.New("broker down")}
	svc, mem := newService(l, pub)

	tx := core.Transaction{Type: core.KindIncome, Date: "2025-05-03", Amount: "1500.0", Concept: "NOMINA", Name: "NOMINA", SourceFilename: "may.csv"}
	ref, err := svc.Save(context.Background(), tx)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if !strings.HasPrefix(ref, QueuedPrefix) {
		t.Errorf("ref = %q", ref)
	}
	if len(l.enqueued) != 1 || len(pub.ids) != 1 || pub.ids[0] != "entry-1" {
		t.Errorf("enqueued=%v published=%v", l.enqueued, pub.ids)
	}
	if _, i, _ := mem.Counts(); i != 0 {
		t.Error("queued save must not write to the store")
	}
}

func TestSaveRejectsInvalid(t *testing.T) {
	svc, _ := newService(nil, nil)
	_, err := svc.Save(context.Background(), core.Transaction{Type: core.KindExpense, Date: "01/05/2025", Amount: "1", SourceFilename: "f.csv"})
	if !errors.Is(err, core.ErrInvalidDate) {
		t.Errorf("Save() error = %v", err)
	}
}

func TestWithoutLedger(t *testing.T) {
	svc, _ := newService(nil, nil)
	ctx := context.Background()
	if _, err := svc.Process(ctx, "may.csv", []byte(statement)); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if err := svc.MarkLoaded(ctx, "may.csv", 0, batch.RowCheck{}); err != nil {
		t.Errorf("MarkLoaded() error = %v", err)
	}
	if _, err := svc.Upload(ctx, "may.csv"); !errors.Is(err, store.ErrNotConfigured) {
		t.Errorf("Upload() error = %v", err)
	}
}

func TestRefreshReferencesAndClose(t *testing.T) {
	l := newFakeLedger()
	svc, _ := newService(l, nil)
	if !svc.RefreshReferences() {
		t.Error("cached reader should be invalidated")
	}
	if err := svc.Close(); err != nil || !l.closed {
		t.Errorf("Close() error = %v closed=%v", err, l.closed)
	}

	bare := NewTransactionService(Deps{})
	if bare.RefreshReferences() {
		t.Error("nil reader has no cache")
	}
	if err := bare.Close(); err != nil {
		t.Errorf("Close() with nil components: %v", err)
	}
}
