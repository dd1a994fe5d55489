package tracker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"wakewatch.dev/watcher/core/config"
)

var _ = Describe("GitLabTracker", func() {
	var (
		ctx  context.Context
		mock *trackerAPIMock
	)

	BeforeEach(func() {
		ctx = context.Background()
		mock = newTrackerAPIMock()
		mock.start()
		DeferCleanup(mock.close)
	})

	newTracker := func() Tracker {
		t, err := NewGitLabTracker(config.TrackerConfig{
			BaseURL:     mock.baseURL(),
			Token:       "glpat-test",
			JobsProject: "42",
		})
		Expect(err).NotTo(HaveOccurred())
		return t
	}

	It("searches open jobs with the fixed query shape", func() {
		mock.issues = []trackerIssue{
			{IID: 1, Title: "mww: hey dude", Labels: []string{}, State: "opened", IssueType: "issue"},
			{IID: 2, Title: "mww: привет дом", Labels: []string{"mww-processing"}, State: "opened", IssueType: "issue"},
		}

		issues, err := newTracker().SearchOpenJobs(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(issues).To(HaveLen(2))
		Expect(issues[0].IID).To(Equal(int64(1)))
		Expect(issues[0].Title).To(Equal("mww: hey dude"))
		Expect(issues[1].Labels).To(ContainElement("mww-processing"))

		q := mock.lastSearchQuery
		Expect(q.Get("state")).To(Equal("opened"))
		Expect(q.Get("search")).To(Equal("mww:"))
		Expect(q.Get("in")).To(Equal("title"))
		Expect(q.Get("order_by")).To(Equal("created_at"))
		Expect(q.Get("sort")).To(Equal("asc"))
		Expect(q.Get("per_page")).To(Equal("100"))
	})

	It("collapses a 403 into a single search error", func() {
		mock.searchStatus = http.StatusForbidden

		_, err := newTracker().SearchOpenJobs(ctx)
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("searching open jobs"))
	})

	It("collapses transport failure into a single search error", func() {
		mock.close()

		_, err := newTracker().SearchOpenJobs(ctx)
		Expect(err).To(HaveOccurred())
	})

	It("adds labels additively", func() {
		mock.issues = []trackerIssue{{IID: 7, Title: "mww: x", State: "opened"}}

		err := newTracker().AddLabels(ctx, 7, "mww-processing")
		Expect(err).NotTo(HaveOccurred())
		Expect(mock.updates).To(HaveLen(1))
		Expect(mock.updates[0].IID).To(Equal(int64(7)))
		Expect(mock.updates[0].AddLabels).To(Equal("mww-processing"))
	})

	It("surfaces label failures to the caller", func() {
		mock.updateStatus = http.StatusUnprocessableEntity

		err := newTracker().AddLabels(ctx, 7, "mww-processing")
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("adding labels"))
	})

	It("posts comments", func() {
		err := newTracker().Comment(ctx, 9, "added!")
		Expect(err).NotTo(HaveOccurred())
		Expect(mock.notes).To(HaveLen(1))
		Expect(mock.notes[0].IID).To(Equal(int64(9)))
		Expect(mock.notes[0].Body).To(Equal("added!"))
	})

	It("closes issues via a state event", func() {
		err := newTracker().Close(ctx, 9)
		Expect(err).NotTo(HaveOccurred())
		Expect(mock.updates).To(HaveLen(1))
		Expect(mock.updates[0].StateEvent).To(Equal("close"))
	})
})

// --- test fixtures ---

type trackerIssue struct {
	ID        int64    `json:"id"`
	IID       int64    `json:"iid"`
	Title     string   `json:"title"`
	Labels    []string `json:"labels"`
	State     string   `json:"state"`
	IssueType string   `json:"issue_type,omitempty"`
	WebURL    string   `json:"web_url,omitempty"`
}

type issueUpdate struct {
	IID        int64
	AddLabels  string
	StateEvent string
}

type issueNote struct {
	IID  int64
	Body string
}

type trackerAPIMock struct {
	server *httptest.Server
	mu     sync.Mutex

	issues       []trackerIssue
	searchStatus int
	updateStatus int

	lastSearchQuery url.Values
	updates         []issueUpdate
	notes           []issueNote
}

func newTrackerAPIMock() *trackerAPIMock {
	return &trackerAPIMock{}
}

func (m *trackerAPIMock) baseURL() string {
	return m.server.URL
}

func (m *trackerAPIMock) start() {
	m.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/v4/projects/42/issues" && r.Method == http.MethodGet:
			m.handleList(w, r)
		case strings.HasPrefix(r.URL.Path, "/api/v4/projects/42/issues/") && strings.HasSuffix(r.URL.Path, "/notes") && r.Method == http.MethodPost:
			m.handleNote(w, r)
		case strings.HasPrefix(r.URL.Path, "/api/v4/projects/42/issues/") && r.Method == http.MethodPut:
			m.handleUpdate(w, r)
		default:
			http.NotFound(w, r)
		}
	}))
}

func (m *trackerAPIMock) close() {
	m.server.Close()
}

func (m *trackerAPIMock) handleList(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastSearchQuery = r.URL.Query()

	if m.searchStatus != 0 {
		http.Error(w, "denied", m.searchStatus)
		return
	}

	w.Header().Set("RateLimit-Remaining", "6")
	issues := make([]trackerIssue, len(m.issues))
	copy(issues, m.issues)
	for i := range issues {
		// The Issue unmarshaler in client-go requires an "id" key,
		// as the real API always sends one.
		if issues[i].ID == 0 {
			issues[i].ID = issues[i].IID
		}
	}
	_ = json.NewEncoder(w).Encode(issues)
}

func (m *trackerAPIMock) handleUpdate(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.updateStatus != 0 {
		http.Error(w, "cannot update", m.updateStatus)
		return
	}

	iid := pathIID(r.URL.Path)

	var body struct {
		AddLabels  string `json:"add_labels"`
		StateEvent string `json:"state_event"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	m.updates = append(m.updates, issueUpdate{
		IID:        iid,
		AddLabels:  body.AddLabels,
		StateEvent: body.StateEvent,
	})

	_ = json.NewEncoder(w).Encode(trackerIssue{ID: iid, IID: iid})
}

func (m *trackerAPIMock) handleNote(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()

	parts := strings.Split(r.URL.Path, "/")
	iid := parseInt64(parts[len(parts)-2])

	var body struct {
		Body string `json:"body"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	m.notes = append(m.notes, issueNote{IID: iid, Body: body.Body})

	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write([]byte(`{"id":1}`))
}

func pathIID(path string) int64 {
	parts := strings.Split(path, "/")
	return parseInt64(parts[len(parts)-1])
}

func parseInt64(s string) int64 {
	var n int64
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0
		}
		n = n*10 + int64(c-'0')
	}
	return n
}
