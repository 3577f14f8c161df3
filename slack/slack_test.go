package slack_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"testing"

	"nutriagent/nutrients"
	"nutriagent/slack"

	should "github.com/stretchr/testify/assert"
	must "github.com/stretchr/testify/require"
)

type mockDoer struct {
	resp   *http.Response
	err    error
	doFunc func(req *http.Request) (*http.Response, error)
}

func (m *mockDoer) Do(req *http.Request) (*http.Response, error) {
	if m.doFunc != nil {
		return m.doFunc(req)
	}
	return m.resp, m.err
}

func TestNewClient(t *testing.T) {
	webhook := "http://slack.com/webhook"
	client := slack.NewClient(webhook, &mockDoer{})
	must.NotNil(t, client, "expected non-nil client")
}

func TestPostMessage(t *testing.T) {
	tests := []struct {
		name    string
		doFunc  func(req *http.Request) (*http.Response, error)
		wantErr error
	}{
		{
			name: "success",
			doFunc: func(req *http.Request) (*http.Response, error) {
				return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(bytes.NewBufferString("ok"))}, nil
			},
			wantErr: nil,
		},
		{
			name: "failure status",
			doFunc: func(req *http.Request) (*http.Response, error) {
				return &http.Response{StatusCode: http.StatusBadRequest, Status: "400 Bad Request", Body: io.NopCloser(bytes.NewBufferString("bad request"))}, nil
			},
			wantErr: fmt.Errorf("failed to post message: 400 Bad Request"),
		},
		{
			name: "do error",
			doFunc: func(req *http.Request) (*http.Response, error) {
				return nil, errors.New("network error")
			},
			wantErr: fmt.Errorf("network error"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := slack.NewClient("http://example.com/webhook", &mockDoer{doFunc: tt.doFunc})
			err := client.PostMessage(context.Background(), "#nutrition", "Hello, world!")
			should.Equal(t, tt.wantErr, err)
		})
	}
}

func TestPostMessage_Payload(t *testing.T) {
	var body map[string]any
	client := slack.NewClient("http://example.com/webhook", &mockDoer{doFunc: func(req *http.Request) (*http.Response, error) {
		should.Equal(t, "application/json", req.Header.Get("Content-Type"))
		must.NoError(t, json.NewDecoder(req.Body).Decode(&body))
		return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(bytes.NewBufferString("ok"))}, nil
	}})

	must.NoError(t, client.PostMessage(context.Background(), "#nutrition", "hi"))
	should.Equal(t, map[string]any{"channel": "#nutrition", "text": "hi"}, body)
}

func TestPostMessage_NoWebhook(t *testing.T) {
	client := slack.NewClient("", &mockDoer{doFunc: func(req *http.Request) (*http.Response, error) {
		t.Fatal("no request expected")
		return nil, nil
	}})

	should.ErrorIs(t, client.PostMessage(context.Background(), "#nutrition", "hi"), slack.ErrNoWebhook)
}

func TestFormatNutrients(t *testing.T) {
	grouped := nutrients.Group(nutrients.FlatFromPairs(
		nutrients.Pair{Key: "saturated-fat_value", Value: 3.1},
		nutrients.Pair{Key: "saturated-fat_unit", Value: "g"},
		nutrients.Pair{Key: "energy-kcal_value", Value: 536.0},
		nutrients.Pair{Key: "energy-kcal_unit", Value: "kcal"},
	))

	got := slack.FormatNutrients("chips", grouped)

	should.Equal(t, "*Nutrients for \"chips\"*\n"+
		"• *Saturated Fat*: value 3.1, unit g\n"+
		"• *Energy Kcal*: value 536, unit kcal", got)
}

func TestFormatNutrients_Empty(t *testing.T) {
	should.Equal(t, `No nutrient data found for "chips".`, slack.FormatNutrients("chips", nutrients.NewGrouped()))
	should.Equal(t, `No nutrient data found for "chips".`, slack.FormatNutrients("chips", nil))
}

func TestFormatNutrients_Concurrent(t *testing.T) {
	grouped := nutrients.Group(nutrients.FlatFromPairs(
		nutrients.Pair{Key: "saturated-fat_value", Value: 3.1},
		nutrients.Pair{Key: "vitamin-c_unit", Value: "mg"},
	))
	want := slack.FormatNutrients("chips", grouped)

	var wg sync.WaitGroup
	got := make([]string, 16)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				got[i] = slack.FormatNutrients("chips", grouped)
			}
		}(i)
	}
	wg.Wait()

	for _, g := range got {
		should.Equal(t, want, g)
	}
}
