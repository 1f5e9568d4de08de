package qrz

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/w9en/qsolog/internal/errors"
)

const loginOK = `<?xml version="1.0" encoding="utf-8" ?>
<QRZDatabase version="1.34" xmlns="http://xmldata.qrz.com">
  <Session>
    <Key>2331uf894c4bd29f3923f3bacf02c532d7bd9</Key>
    <Count>123</Count>
    <SubExp>Wed Jan 1 12:34:03 2027</SubExp>
  </Session>
</QRZDatabase>`

const lookupOK = `<?xml version="1.0" encoding="utf-8" ?>
<QRZDatabase version="1.34" xmlns="http://xmldata.qrz.com">
  <Callsign>
    <call>VE3XYZ</call>
    <fname>Marie</fname>
    <name>Tremblay</name>
    <state>ON</state>
    <country>Canada</country>
    <grid>FN25</grid>
    <cqzone>5</cqzone>
  </Callsign>
  <Session>
    <Key>2331uf894c4bd29f3923f3bacf02c532d7bd9</Key>
  </Session>
</QRZDatabase>`

func sessionError(msg string) string {
	return `<QRZDatabase xmlns="http://xmldata.qrz.com"><Session><Error>` + msg + `</Error></Session></QRZDatabase>`
}

func TestLookup_LogsInFirst(t *testing.T) {
	var logins atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch {
		case q.Get("username") != "":
			logins.Add(1)
			assert.Equal(t, "w9en", q.Get("username"))
			assert.Equal(t, "secret", q.Get("password"))
			assert.Equal(t, Agent, q.Get("agent"))
			w.Write([]byte(loginOK))
		case q.Get("s") != "":
			assert.Equal(t, "VE3XYZ", q.Get("callsign"))
			w.Write([]byte(lookupOK))
		default:
			t.Errorf("unexpected query %q", r.URL.RawQuery)
		}
	}))
	defer srv.Close()

	c := New(Options{Username: "w9en", Password: "secret", LookupURL: srv.URL})
	cs, err := c.Lookup(context.Background(), " ve3xyz ")
	require.NoError(t, err)

	assert.Equal(t, "VE3XYZ", cs.Call)
	assert.Equal(t, "Marie Tremblay", cs.FullName())
	assert.Equal(t, "FN25", cs.Grid)
	assert.Equal(t, "5", cs.CQZone)
	assert.True(t, c.LoggedIn())

	_, err = c.Lookup(context.Background(), "VE3XYZ")
	require.NoError(t, err)
	assert.Equal(t, int32(1), logins.Load(), "session key should be reused")
}

func TestLookup_RenewsExpiredSession(t *testing.T) {
	var lookups atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("username") != "" {
			w.Write([]byte(loginOK))
			return
		}
		if lookups.Add(1) == 1 {
			w.Write([]byte(sessionError("Session Timeout")))
			return
		}
		w.Write([]byte(lookupOK))
	}))
	defer srv.Close()

	c := New(Options{Username: "w9en", Password: "secret", LookupURL: srv.URL})
	cs, err := c.Lookup(context.Background(), "VE3XYZ")
	require.NoError(t, err)
	assert.Equal(t, "VE3XYZ", cs.Call)
	assert.Equal(t, int32(2), lookups.Load())
}

func TestLookup_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("username") != "" {
			w.Write([]byte(loginOK))
			return
		}
		w.Write([]byte(sessionError("Not found: K1ABC")))
	}))
	defer srv.Close()

	c := New(Options{Username: "w9en", Password: "secret", LookupURL: srv.URL})
	_, err := c.Lookup(context.Background(), "K1ABC")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrUploadFailed))
	assert.Contains(t, err.Error(), "Not found: K1ABC")
}

func TestLogin_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sessionError("Username/password incorrect")))
	}))
	defer srv.Close()

	c := New(Options{Username: "w9en", Password: "wrong", LookupURL: srv.URL})
	err := c.Login(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Username/password incorrect")
	assert.False(t, c.LoggedIn())
}

func TestLogin_MissingCredentials(t *testing.T) {
	err := New(Options{}).Login(context.Background())
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestLookup_MalformedXML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>maintenance"))
	}))
	defer srv.Close()

	c := New(Options{Username: "w9en", Password: "secret", LookupURL: srv.URL})
	_, err := c.Lookup(context.Background(), "VE3XYZ")
	assert.True(t, errors.Is(err, errors.ErrUploadFailed))
}

func TestUpload(t *testing.T) {
	const record = "<call:4>W9EN <qso_date:8>20240501 <time_on:4>1230 <band:3>20M <mode:3>SSB <eor>\n"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "abcd-1234", r.PostForm.Get("KEY"))
		assert.Equal(t, "INSERT", r.PostForm.Get("ACTION"))
		assert.Equal(t, record, r.PostForm.Get("ADIF"))
		w.Write([]byte("RESULT=OK&COUNT=1&LOGID=130877825\n"))
	}))
	defer srv.Close()

	c := New(Options{APIKey: "abcd-1234", LogbookURL: srv.URL})
	res, err := c.Upload(context.Background(), record)
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.Equal(t, 1, res.Count)
	assert.Equal(t, int64(130877825), res.LogID)
}

func TestUpload_RejectedIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("RESULT=FAIL&REASON=Unable to add QSO to database: duplicate&EXTENDED="))
	}))
	defer srv.Close()

	res, err := New(Options{APIKey: "k", LogbookURL: srv.URL}).Upload(context.Background(), "<call:4>W9EN <eor>")
	require.NoError(t, err)
	assert.False(t, res.OK())
	assert.Equal(t, "FAIL", res.Status)
	assert.Equal(t, "Unable to add QSO to database: duplicate", res.Reason)
}

func TestUpload_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := New(Options{APIKey: "k", LogbookURL: srv.URL}).Upload(context.Background(), "<eor>")
	assert.True(t, errors.Is(err, errors.ErrUploadFailed))
}

func TestUpload_MissingKey(t *testing.T) {
	_, err := New(Options{}).Upload(context.Background(), "<eor>")
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestParseUploadResponse(t *testing.T) {
	tests := []struct {
		body string
		want UploadResult
	}{
		{"RESULT=OK&COUNT=1&LOGID=42", UploadResult{Status: "OK", Count: 1, LogID: 42}},
		{"result=ok&logid=7\n", UploadResult{Status: "ok", LogID: 7}},
		{"RESULT=AUTH&REASON=invalid api key", UploadResult{Status: "AUTH", Reason: "invalid api key"}},
		{"RESULT=FAIL&COUNT=x", UploadResult{Status: "FAIL"}},
		{"garbage", UploadResult{}},
	}
	for _, tt := range tests {
		t.Run(tt.body, func(t *testing.T) {
			assert.Equal(t, tt.want, *ParseUploadResponse(tt.body))
		})
	}
}

func TestUploadResult_OKNeedsExactToken(t *testing.T) {
	tests := []struct {
		status string
		want   bool
	}{
		{"OK", true},
		{"ok", false},
		{"Ok", false},
		{"OK ", false},
		{"FAIL", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			assert.Equal(t, tt.want, (&UploadResult{Status: tt.status}).OK())
		})
	}
}
