package lifecycle

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestMarkUploadedIdempotent(t *testing.T) {
	app := newTestApplication(StatusInterviewDocumentsRequired)
	stampEvents(app, TimeSubmitted)
	snap := NewSnapshot(app)

	sels := selections(1)
	_, err := Apply(snap, Command{Event: EventConfigureInterviewDocs, DocumentTypes: sels}, testNow)
	require.NoError(t, err)

	first := uuid.New()
	res, err := MarkUploaded(snap, StageInterview, sels[0].TypeID, first)
	require.NoError(t, err)
	require.True(t, res.Changed)
	require.Equal(t, first, *res.Item.UploadedDocumentID)

	// Second mark with the same document is a no-op.
	res, err = MarkUploaded(snap, StageInterview, sels[0].TypeID, first)
	require.NoError(t, err)
	require.False(t, res.Changed)
	require.Equal(t, first, *res.Item.UploadedDocumentID)

	// A different document does not displace the existing reference.
	res, err = MarkUploaded(snap, StageInterview, sels[0].TypeID, uuid.New())
	require.NoError(t, err)
	require.False(t, res.Changed)
	require.Equal(t, first, *res.Item.UploadedDocumentID)
}

func TestMarkUploadedUnknownTargets(t *testing.T) {
	app := newTestApplication(StatusInterviewDocumentsRequired)
	snap := NewSnapshot(app)

	_, err := MarkUploaded(snap, StageInterview, uuid.New(), uuid.New())
	require.ErrorIs(t, err, ErrNotFound)

	sels := selections(1)
	_, err = Apply(snap, Command{Event: EventConfigureInterviewDocs, DocumentTypes: sels}, testNow)
	require.NoError(t, err)

	_, err = MarkUploaded(snap, StageInterview, uuid.New(), uuid.New())
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSatisfyingVisaSetReadiesApplication(t *testing.T) {
	app := newTestApplication(StatusCASApplicationInProgress)
	stampEvents(app, TimeSubmitted, TimeCASApplied, TimeCASReceived, TimeVisaEnabled)
	snap := NewSnapshot(app)

	sels := []DocumentTypeSelection{
		{TypeID: uuid.New(), Name: "Passport", Required: true},
		{TypeID: uuid.New(), Name: "Bank Statement", Required: false},
	}
	_, err := Apply(snap, Command{Event: EventConfigureVisaDocs, DocumentTypes: sels}, testNow)
	require.NoError(t, err)
	require.Equal(t, StatusVisaDocumentsRequired, snap.Status())

	// Optional items do not hold the stage back.
	res, err := MarkUploaded(snap, StageVisa, sels[0].TypeID, uuid.New())
	require.NoError(t, err)
	require.NotNil(t, res.PromotedTo)
	require.Equal(t, StatusVisaApplicationReady, *res.PromotedTo)
	require.Equal(t, StatusVisaApplicationReady, snap.Status())

	// Marking the optional item afterwards changes nothing further.
	res, err = MarkUploaded(snap, StageVisa, sels[1].TypeID, uuid.New())
	require.NoError(t, err)
	require.Nil(t, res.PromotedTo)
}

func TestAllRequiredSatisfiedMirrorsGate(t *testing.T) {
	app := newTestApplication(StatusInterviewDocumentsRequired)
	stampEvents(app, TimeSubmitted)
	snap := NewSnapshot(app)

	sels := selections(2)
	_, err := Apply(snap, Command{Event: EventConfigureInterviewDocs, DocumentTypes: sels}, testNow)
	require.NoError(t, err)

	set := snap.DocumentSet(StageInterview)
	for _, sel := range sels {
		require.Equal(t, set.AllRequiredSatisfied(), Check(snap, EventRequestInterview).Allowed)
		_, err := MarkUploaded(snap, StageInterview, sel.TypeID, uuid.New())
		require.NoError(t, err)
	}
	require.True(t, set.AllRequiredSatisfied())
	require.True(t, Check(snap, EventRequestInterview).Allowed)
}
