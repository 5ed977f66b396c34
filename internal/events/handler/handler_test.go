package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"crvs/internal/events/countryconfig"
	"crvs/internal/events/eventconfig"
	"crvs/internal/events/models"
	"crvs/internal/events/service"
	draftstore "crvs/internal/events/store/draft"
	eventstore "crvs/internal/events/store/event"
	"crvs/pkg/testutil"
)

const officer = "officer-1"

var officerScopes = []string{
	"record.create[event=tennis-club-membership]",
	"record.read",
	"record.declare",
	"record.register",
	"record.custom-action[event=tennis-club-membership,customActionType=CONFIRM]",
	"record.assign",
	"record.correction-request",
	"record.correction-approve",
}

type HandlerSuite struct {
	suite.Suite
	router  chi.Router
	country *httptest.Server
	status  atomic.Int32
	calls   atomic.Int32
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	raw, err := os.ReadFile("../eventconfig/testdata/events.yaml")
	s.Require().NoError(err)
	configs, err := eventconfig.Parse(raw)
	s.Require().NoError(err)

	s.status.Store(http.StatusOK)
	s.calls.Store(0)
	s.country = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.calls.Add(1)
		w.WriteHeader(int(s.status.Load()))
	}))
	s.T().Cleanup(s.country.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := service.New(
		eventstore.NewInMemoryStore(),
		draftstore.NewInMemoryStore(time.Hour),
		configs,
		countryconfig.New(s.country.URL, countryconfig.WithTimeout(2*time.Second)),
		service.WithLogger(logger),
	)
	s.router = chi.NewRouter()
	New(svc, logger).Register(s.router)
}

func (s *HandlerSuite) do(method, path string, body any, scopes ...string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req = testutil.WithActor(req, officer, "REGISTRATION_AGENT", scopes...)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *HandlerSuite) decodeDoc(rec *httptest.ResponseRecorder) models.EventDocument {
	var doc models.EventDocument
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &doc))
	return doc
}

func (s *HandlerSuite) createEvent(tx string) models.EventDocument {
	rec := s.do(http.MethodPost, "/events", map[string]any{
		"type":          "TENNIS_CLUB_MEMBERSHIP",
		"transactionId": tx,
	}, officerScopes...)
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	return s.decodeDoc(rec)
}

func (s *HandlerSuite) errorCode(rec *httptest.ResponseRecorder) string {
	var body struct {
		Error string `json:"error"`
	}
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error
}

func (s *HandlerSuite) TestCreateAndGet() {
	created := s.createEvent("http-create")
	s.Equal("tennis-club-membership", created.Event.Type)
	s.Equal(models.StatusInProgress, created.State.Status)

	rec := s.do(http.MethodGet, "/events/"+created.Event.ID.String(), nil, officerScopes...)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal(created.Event.ID, s.decodeDoc(rec).Event.ID)

	rec = s.do(http.MethodGet, "/events/not-a-uuid", nil, officerScopes...)
	s.Equal(http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/events", nil, officerScopes...)
	s.Equal(http.StatusBadRequest, rec.Code)
	s.Equal("bad_request", s.errorCode(rec))
}

func (s *HandlerSuite) TestCustomActionOverHTTP() {
	created := s.createEvent("http-custom")
	path := "/events/" + created.Event.ID.String() + "/actions/custom"
	body := map[string]any{
		"customActionType": "CONFIRM",
		"transactionId":    "http-confirm",
		"annotation":       map[string]any{"notes": "Confirmed membership"},
	}

	s.Run("forbidden without the scope", func() {
		rec := s.do(http.MethodPost, path, body,
			"record.custom-action[event=birth,customActionType=CONFIRM]",
			"record.custom-action[event=tennis-club-membership,customActionType=UPDATE_CONTACT]",
		)
		s.Equal(http.StatusForbidden, rec.Code)
		s.Equal("forbidden", s.errorCode(rec))
		s.Zero(s.calls.Load())
	})

	s.Run("unknown custom type", func() {
		rec := s.do(http.MethodPost, path, map[string]any{
			"customActionType": "INVALID_ACTION",
			"transactionId":    "http-invalid",
		}, "record.custom-action[event=tennis-club-membership]")
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("accepted synchronously", func() {
		rec := s.do(http.MethodPost, path, body, officerScopes...)
		s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
		doc := s.decodeDoc(rec)
		last := doc.Event.Actions[len(doc.Event.Actions)-1]
		s.Equal(models.ActionCustom, last.Type)
		s.Equal("Confirmed membership", last.Annotation["notes"])
		s.Equal(int32(1), s.calls.Load())
	})

	s.Run("replay does not call out again", func() {
		rec := s.do(http.MethodPost, path, body, officerScopes...)
		s.Require().Equal(http.StatusOK, rec.Code)
		s.Equal(int32(1), s.calls.Load())
	})
}

func (s *HandlerSuite) TestAsyncConfirmationOverHTTP() {
	created := s.createEvent("http-async")
	base := "/events/" + created.Event.ID.String()

	s.status.Store(http.StatusAccepted)
	rec := s.do(http.MethodPost, base+"/actions/custom", map[string]any{
		"customActionType": "CONFIRM",
		"transactionId":    "http-async-confirm",
		"annotation":       map[string]any{"notes": "pending review"},
	}, officerScopes...)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	doc := s.decodeDoc(rec)
	s.Require().Len(doc.State.PendingConfirmations, 1)
	s.False(doc.State.HasFlag("membership-confirmed"))
	requested := doc.State.PendingConfirmations[0].ActionID

	rec = s.do(http.MethodPost, base+"/actions/custom/"+requested.String()+"/accept",
		map[string]any{"transactionId": "http-async-accept"}, "record.confirm-action")
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	doc = s.decodeDoc(rec)
	s.Empty(doc.State.PendingConfirmations)
	s.True(doc.State.HasFlag("membership-confirmed"))

	rec = s.do(http.MethodPost, base+"/actions/"+requested.String()+"/reject",
		map[string]any{"transactionId": "http-async-reject"}, "record.confirm-action")
	s.Equal(http.StatusConflict, rec.Code)
}

func (s *HandlerSuite) TestUpstreamFailure() {
	created := s.createEvent("http-upstream")
	s.status.Store(http.StatusInternalServerError)

	rec := s.do(http.MethodPost, "/events/"+created.Event.ID.String()+"/actions/custom", map[string]any{
		"customActionType": "CONFIRM",
		"transactionId":    "http-upstream-confirm",
		"annotation":       map[string]any{"notes": "x"},
	}, officerScopes...)
	s.Equal(http.StatusBadGateway, rec.Code)
	s.Equal("upstream_error", s.errorCode(rec))

	rec = s.do(http.MethodGet, "/events/"+created.Event.ID.String(), nil, officerScopes...)
	s.Len(s.decodeDoc(rec).Event.Actions, 2)
}

func (s *HandlerSuite) TestBuiltInActionsAndCorrections() {
	created := s.createEvent("http-lifecycle")
	base := "/events/" + created.Event.ID.String()

	rec := s.do(http.MethodPost, base+"/actions/declare", map[string]any{
		"transactionId": "http-declare",
		"declaration": map[string]any{
			"applicant.firstname": "Ada",
			"applicant.surname":   "Lovelace",
			"applicant.dob":       "1990-12-10",
		},
	}, officerScopes...)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(http.MethodPost, base+"/actions/register", map[string]any{"transactionId": "http-register"}, officerScopes...)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	s.Equal(models.StatusRegistered, s.decodeDoc(rec).State.Status)

	rec = s.do(http.MethodPost, base+"/actions/teleport", map[string]any{"transactionId": "x"}, officerScopes...)
	s.Equal(http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, base+"/corrections", map[string]any{
		"transactionId": "http-correction",
		"declaration":   map[string]any{"applicant.surname": "King"},
	}, officerScopes...)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	open := s.decodeDoc(rec).State.PendingCorrection
	s.Require().NotNil(open)

	rec = s.do(http.MethodPost, base+"/corrections/"+open.RequestID.String()+"/approve",
		map[string]any{"transactionId": "http-approve"}, officerScopes...)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	s.Equal("King", s.decodeDoc(rec).State.Declaration["applicant.surname"])
}

func (s *HandlerSuite) TestAssignmentAndDrafts() {
	created := s.createEvent("http-drafts")
	base := "/events/" + created.Event.ID.String()

	rec := s.do(http.MethodPut, base+"/drafts", map[string]any{
		"actionType":  "DECLARE",
		"declaration": map[string]any{"applicant.firstname": "Ada"},
	}, officerScopes...)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(http.MethodGet, base+"/state?withDraft=true", nil, officerScopes...)
	s.Require().Equal(http.StatusOK, rec.Code)
	var state models.EventState
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &state))
	s.Equal("Ada", state.Declaration["applicant.firstname"])

	rec = s.do(http.MethodGet, base+"/state?withDraft=maybe", nil, officerScopes...)
	s.Equal(http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodGet, "/drafts", nil, officerScopes...)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.True(strings.Contains(rec.Body.String(), created.Event.ID.String()))

	rec = s.do(http.MethodDelete, base+"/drafts", nil, officerScopes...)
	s.Equal(http.StatusNoContent, rec.Code)

	rec = s.do(http.MethodPost, base+"/unassign", map[string]any{"transactionId": "http-unassign"}, officerScopes...)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	s.True(s.decodeDoc(rec).State.AssignedTo.IsNil())

	rec = s.do(http.MethodPost, base+"/assign", map[string]any{"transactionId": "http-assign"}, officerScopes...)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	s.Equal(officer, s.decodeDoc(rec).State.AssignedTo.String())
}

func (s *HandlerSuite) TestListAndConfigs() {
	s.createEvent("http-list-1")
	s.createEvent("http-list-2")

	rec := s.do(http.MethodGet, "/events?type=tennis-club-membership&status=IN_PROGRESS", nil, officerScopes...)
	s.Require().Equal(http.StatusOK, rec.Code)
	var docs []models.EventDocument
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &docs))
	s.Len(docs, 2)

	rec = s.do(http.MethodGet, "/events?status=SHIPPED", nil, officerScopes...)
	s.Equal(http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodGet, "/event-configs", nil, officerScopes...)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), "tennis-club-membership")
}
