package handlers

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/docflow/internal/domain/document"
	"github.com/ahrav/docflow/internal/domain/processor"
	"github.com/ahrav/docflow/internal/infra/objectstore"
	"github.com/ahrav/docflow/internal/platform/tenantctx"
)

type fixedCredentials struct{ values map[string]string }

func (c fixedCredentials) Resolve(_ context.Context, key string, _, _ *string) (string, error) {
	v, ok := c.values[key]
	if !ok {
		return "", errors.New("credential not found")
	}
	return v, nil
}

func testDoc(t *testing.T, ctx context.Context, blobs *objectstore.Memory, mime string, data []byte) *document.Document {
	t.Helper()
	doc := document.New("camp-1", "statement.txt", mime, "documents/statement.txt", "default", data)
	require.NoError(t, blobs.Put(ctx, doc.StoragePath, data))
	return doc
}

func testCall(blobs processor.BlobStore) *processor.CallContext {
	return &processor.CallContext{
		JobID:           "job-1",
		CampaignID:      "camp-1",
		PreviousOutputs: map[string]map[string]any{},
		Credentials:     fixedCredentials{values: map[string]string{}},
		Blobs:           blobs,
	}
}

func scopedCtx() context.Context {
	return tenantctx.With(context.Background(),
		&tenantctx.Scope{TenantID: "11111111-1111-1111-1111-111111111111", Slug: "acme"})
}

func TestOCRPassesThroughPlainText(t *testing.T) {
	ctx := scopedCtx()
	blobs := objectstore.NewMemory()
	doc := testDoc(t, ctx, blobs, "text/plain", []byte("Invoice total: $42.00"))

	res, err := NewOCR().Process(ctx, doc, nil, testCall(blobs))
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, "Invoice total: $42.00", res.Output["text"])
	assert.Positive(t, res.TokensUsed)
}

func TestOCRSynthesizesTranscriptForBinary(t *testing.T) {
	ctx := scopedCtx()
	blobs := objectstore.NewMemory()
	doc := testDoc(t, ctx, blobs, "application/pdf", []byte{0x25, 0x50, 0x44, 0x46, 0x00})

	res, err := NewOCR().Process(ctx, doc, nil, testCall(blobs))
	require.NoError(t, err)
	text, _ := res.Output["text"].(string)
	assert.Contains(t, text, doc.ContentHash)
	assert.Contains(t, text, doc.Filename)
}

func TestOCRRejectsUnsupportedMime(t *testing.T) {
	doc := document.New("camp-1", "page.html", "text/html", "p", "default", []byte("<html>"))
	assert.False(t, NewOCR().CanProcess(doc))
	assert.True(t, NewOCR().CanProcess(
		document.New("camp-1", "f.pdf", "application/pdf", "p", "default", []byte("x"))))
}

func TestOCRMissingBlobFails(t *testing.T) {
	ctx := scopedCtx()
	blobs := objectstore.NewMemory()
	doc := document.New("camp-1", "f.pdf", "application/pdf", "documents/missing.pdf", "default", []byte("x"))

	_, err := NewOCR().Process(ctx, doc, nil, testCall(blobs))
	assert.Error(t, err)
}

func TestClassifyMatchesKeywordsInOrder(t *testing.T) {
	ctx := scopedCtx()
	blobs := objectstore.NewMemory()
	doc := testDoc(t, ctx, blobs, "text/plain", []byte("x"))

	call := testCall(blobs)
	call.PreviousOutputs["ocr"] = map[string]any{"text": "INVOICE\nAmount Due: $100\nThis agreement..."}

	res, err := NewClassify().Process(ctx, doc, nil, call)
	require.NoError(t, err)
	// Invoice keywords win over the later contract match.
	assert.Equal(t, "invoice", res.Output["category"])
	assert.Greater(t, res.Output["confidence"].(float64), 0.2)
}

func TestClassifyFallsBackToFilename(t *testing.T) {
	ctx := scopedCtx()
	blobs := objectstore.NewMemory()
	doc := document.New("camp-1", "passport-scan.png", "image/png", "p", "default", []byte("x"))

	res, err := NewClassify().Process(ctx, doc, nil, testCall(blobs))
	require.NoError(t, err)
	assert.Equal(t, "identity", res.Output["category"])
}

func TestClassifyDefaultsToOther(t *testing.T) {
	ctx := scopedCtx()
	blobs := objectstore.NewMemory()
	doc := document.New("camp-1", "notes.txt", "text/plain", "p", "default", []byte("x"))

	res, err := NewClassify().Process(ctx, doc, nil, testCall(blobs))
	require.NoError(t, err)
	assert.Equal(t, "other", res.Output["category"])
	assert.Equal(t, 0.2, res.Output["confidence"])
}

func TestExtractionPullsFields(t *testing.T) {
	ctx := scopedCtx()
	blobs := objectstore.NewMemory()
	doc := testDoc(t, ctx, blobs, "text/plain", []byte("x"))

	call := testCall(blobs)
	call.PreviousOutputs["ocr"] = map[string]any{
		"text": "Statement 2026-01-15\nContact billing@example.com\nBalance: $1,234.56",
	}

	res, err := NewExtraction().Process(ctx, doc, nil, call)
	require.NoError(t, err)
	fields := res.Output["fields"].(map[string]any)
	assert.Equal(t, []string{"billing@example.com"}, fields["emails"])
	assert.Equal(t, []string{"2026-01-15"}, fields["dates"])
	assert.Equal(t, []string{"$1,234.56"}, fields["amounts"])
	assert.Equal(t, "Statement 2026-01-15", fields["first_line"])
}

func TestExtractionDeclaresOCRDependency(t *testing.T) {
	assert.Equal(t, []string{"ocr"}, NewExtraction().DependencySlugs())
}

func TestEKYCIssuesTransaction(t *testing.T) {
	ctx := scopedCtx()
	blobs := objectstore.NewMemory()
	doc := testDoc(t, ctx, blobs, "application/pdf", []byte("x"))

	call := testCall(blobs)
	call.Credentials = fixedCredentials{values: map[string]string{EKYCCredentialKey: "sk_test"}}

	res, err := NewEKYC().Process(ctx, doc, nil, call)
	require.NoError(t, err)
	assert.True(t, res.AwaitingCallback)
	require.NotEmpty(t, res.TransactionID)
	assert.Equal(t, res.TransactionID, res.Output["transaction_id"])
}

func TestEKYCRequiresCredential(t *testing.T) {
	ctx := scopedCtx()
	blobs := objectstore.NewMemory()
	doc := testDoc(t, ctx, blobs, "application/pdf", []byte("x"))

	_, err := NewEKYC().Process(ctx, doc, nil, testCall(blobs))
	assert.Error(t, err)
}

func TestEKYCRejectsEmptyCredential(t *testing.T) {
	ctx := scopedCtx()
	blobs := objectstore.NewMemory()
	doc := testDoc(t, ctx, blobs, "application/pdf", []byte("x"))

	call := testCall(blobs)
	call.Credentials = fixedCredentials{values: map[string]string{EKYCCredentialKey: ""}}

	_, err := NewEKYC().Process(ctx, doc, nil, call)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing configuration")
}

func TestSignRequiresEKYCOutput(t *testing.T) {
	ctx := scopedCtx()
	blobs := objectstore.NewMemory()
	doc := testDoc(t, ctx, blobs, "application/pdf", []byte("x"))

	_, err := NewSign().Process(ctx, doc, nil, testCall(blobs))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing dependency")
}

func TestSignRejectsDeclinedVerification(t *testing.T) {
	ctx := scopedCtx()
	blobs := objectstore.NewMemory()
	doc := testDoc(t, ctx, blobs, "application/pdf", []byte("x"))

	call := testCall(blobs)
	call.PreviousOutputs["ekyc"] = map[string]any{"status": "declined"}

	res, err := NewSign().Process(ctx, doc, nil, call)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "invalid file")
}

func TestSignIssuesEnvelope(t *testing.T) {
	ctx := scopedCtx()
	blobs := objectstore.NewMemory()
	doc := testDoc(t, ctx, blobs, "application/pdf", []byte("x"))

	call := testCall(blobs)
	call.PreviousOutputs["ekyc"] = map[string]any{"status": "auto_approved"}

	res, err := NewSign().Process(ctx, doc, nil, call)
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Contains(t, res.Output["envelope_id"], "env_")
	assert.Equal(t, "sent", res.Output["status"])
}

func TestStoreArchivesDocument(t *testing.T) {
	ctx := scopedCtx()
	blobs := objectstore.NewMemory()
	doc := testDoc(t, ctx, blobs, "application/pdf", []byte("payload"))

	res, err := NewStore().Process(ctx, doc, map[string]any{"prefix": "cold"}, testCall(blobs))
	require.NoError(t, err)
	archived, _ := res.Output["archived_path"].(string)
	assert.Contains(t, archived, "cold/")

	data, err := blobs.Get(ctx, archived)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)
}

func TestNotifyDefaultsToEmail(t *testing.T) {
	ctx := scopedCtx()
	blobs := objectstore.NewMemory()
	doc := testDoc(t, ctx, blobs, "application/pdf", []byte("x"))

	res, err := NewNotify().Process(ctx, doc, nil, testCall(blobs))
	require.NoError(t, err)
	assert.Equal(t, "email", res.Output["channel"])

	res, err = NewNotify().Process(ctx, doc, map[string]any{"channel": "slack"}, testCall(blobs))
	require.NoError(t, err)
	assert.Equal(t, "slack", res.Output["channel"])
}
