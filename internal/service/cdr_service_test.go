package service

import (
	"context"
	"errors"
	"testing"

	"github.com/pbxgate/pbxgate/internal/domain/pbx"
)

func TestCDRService_Query(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	client := newFakePBX().
		on("cdrapi", replyWith(`{"cdr_root":[{"src":"1001","dst":"1002"}]}`))
	sessions, _ := newStores(clock)
	svc := NewCDRService(client, sessions, nil)
	svc.now = clock.Now

	res := svc.Query(context.Background(), CDRQuery{
		Cookie:    "sid=1",
		Caller:    "1001",
		Format:    "json",
		StartTime: "2026-03-01T00:00",
		Extra:     map[string]any{"numRecords": 10, "cookie": "overridden"},
	})
	if !res.Success || res.Status != 200 {
		t.Fatalf("Query() = %+v", res)
	}
	if string(res.Data) != `{"cdr_root":[{"src":"1001","dst":"1002"}]}` {
		t.Errorf("Data = %s", res.Data)
	}
	if !res.Timestamp.Equal(clock.Now()) {
		t.Errorf("Timestamp = %v", res.Timestamp)
	}

	req := client.last("cdrapi")
	want := map[string]any{
		"cookie":     "sid=1",
		"caller":     "1001",
		"format":     "json",
		"startTime":  "2026-03-01T00:00",
		"numRecords": 10,
	}
	for k, v := range want {
		if req.Fields[k] != v {
			t.Errorf("field %s = %v, want %v", k, req.Fields[k], v)
		}
	}
	for _, k := range []string{"callee", "endTime"} {
		if _, ok := req.Fields[k]; ok {
			t.Errorf("empty filter %s should be omitted", k)
		}
	}
}

func TestCDRService_QueryFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		user       string
		cookie     string
		err        error
		wantError  string
		wantStatus int
		wantData   string
	}{
		{
			name:      "no session",
			user:      "nobody",
			wantError: "No active session",
		},
		{
			name:       "remote error",
			cookie:     "c",
			err:        &pbx.RemoteError{Op: "cdrapi", HTTPStatus: 500, Body: []byte(`{"error":"db"}`)},
			wantError:  "CDR API responded with error",
			wantStatus: 500,
			wantData:   `{"error":"db"}`,
		},
		{
			name:      "network error",
			cookie:    "c",
			err:       &pbx.RemoteError{Op: "cdrapi", Err: errors.New("no route to host")},
			wantError: "Network error - unable to reach CDR API",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			client := newFakePBX().on("cdrapi", failWith(tt.err))
			sessions, _ := newStores(newFakeClock())
			svc := NewCDRService(client, sessions, nil)

			res := svc.Query(context.Background(), CDRQuery{User: tt.user, Cookie: tt.cookie})
			if res.Success || res.Error != tt.wantError || res.Status != tt.wantStatus {
				t.Errorf("Query() = %+v, want error %q status %d", res, tt.wantError, tt.wantStatus)
			}
			if tt.wantData != "" && string(res.Data) != tt.wantData {
				t.Errorf("Data = %s, want %s", res.Data, tt.wantData)
			}
		})
	}
}

func TestCallService_MakeCall(t *testing.T) {
	t.Parallel()

	client := newFakePBX().on("call", replyWith(`{"status":0}`))
	sessions, _ := newStores(newFakeClock())
	NewSessionService(sessions, nil).StoreSimple("alice", "sid=alice")
	svc := NewCallService(client, sessions, nil)

	reply, err := svc.MakeCall(context.Background(), CallRequest{User: "alice", Extension: "1001", Number: "5551234"})
	if err != nil {
		t.Fatalf("MakeCall() error = %v", err)
	}
	if !reply.OK() {
		t.Error("MakeCall() reply not OK")
	}
	req := client.last("call")
	if req.Cookie != "sid=alice" || req.Fields["ext"] != "1001" || req.Fields["number"] != "5551234" {
		t.Errorf("call request = %+v", req)
	}

	if _, err := svc.MakeCall(context.Background(), CallRequest{User: "bob"}); !errors.Is(err, pbx.ErrNoActiveSession) {
		t.Errorf("MakeCall() error = %v, want ErrNoActiveSession", err)
	}
}
