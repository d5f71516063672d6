package meetingsvc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
)

type zoomService struct {
	conf   core.ZoomConfig
	client *http.Client
	logger core.Logger

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

var _ core.MeetingService = (*zoomService)(nil)

func NewZoomService(conf core.ZoomConfig, logger core.Logger) *zoomService {
	return &zoomService{
		conf:   conf,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

// getToken returns a cached access token, fetching a fresh one when less than
// 5 minutes of validity remain. Concurrent callers share one refresh.
func (svc *zoomService) getToken(ctx context.Context) (string, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	if svc.accessToken != "" && time.Until(svc.tokenExpiry) > 5*time.Minute {
		return svc.accessToken, nil
	}

	q := url.Values{}
	q.Set("grant_type", "account_credentials")
	q.Set("account_id", svc.conf.AccountID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, svc.conf.TokenURL+"?"+q.Encode(), nil)
	if err != nil {
		return "", errors.Wrap(err, "building token request")
	}
	req.SetBasicAuth(svc.conf.ClientID, svc.conf.ClientSecret)

	res, err := svc.client.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "requesting access token")
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return "", errors.Errorf("requesting access token - status: %d", res.StatusCode)
	}

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err = json.NewDecoder(res.Body).Decode(&body); err != nil {
		return "", errors.Wrap(err, "decoding token response")
	}

	svc.accessToken = body.AccessToken
	svc.tokenExpiry = time.Now().Add(time.Duration(body.ExpiresIn) * time.Second)
	return svc.accessToken, nil
}

type zoomMeetingRequest struct {
	Topic     string `json:"topic"`
	Type      int    `json:"type"` // 2: scheduled meeting
	StartTime string `json:"start_time"`
	Duration  int    `json:"duration"`
	Timezone  string `json:"timezone"`
	Agenda    string `json:"agenda,omitempty"`
	Settings  struct {
		JoinBeforeHost bool `json:"join_before_host"`
		WaitingRoom    bool `json:"waiting_room"`
	} `json:"settings"`
}

func (svc *zoomService) CreateMeeting(ctx context.Context, nm core.NewMeeting) (core.Meeting, error) {
	token, err := svc.getToken(ctx)
	if err != nil {
		return core.Meeting{}, err
	}

	mr := zoomMeetingRequest{
		Topic:     nm.Topic,
		Type:      2,
		StartTime: nm.StartAt.UTC().Format("2006-01-02T15:04:05Z"),
		Duration:  nm.DurationMinutes,
		Timezone:  "UTC",
		Agenda:    nm.Agenda,
	}
	mr.Settings.JoinBeforeHost = true

	buf, err := json.Marshal(mr)
	if err != nil {
		return core.Meeting{}, errors.Wrap(err, "encoding meeting request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, svc.conf.BaseURL+"/v2/users/me/meetings", bytes.NewReader(buf))
	if err != nil {
		return core.Meeting{}, errors.Wrap(err, "building meeting request")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	res, err := svc.client.Do(req)
	if err != nil {
		return core.Meeting{}, errors.Wrap(err, "creating meeting")
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusCreated {
		return core.Meeting{}, errors.Errorf("creating meeting - status: %d", res.StatusCode)
	}

	var body struct {
		ID       int64  `json:"id"`
		JoinURL  string `json:"join_url"`
		StartURL string `json:"start_url"`
		Password string `json:"password"`
	}
	if err = json.NewDecoder(res.Body).Decode(&body); err != nil {
		return core.Meeting{}, errors.Wrap(err, "decoding meeting response")
	}

	svc.logger.Debug(fmt.Sprintf("created meeting %d (%s)", body.ID, nm.Topic))
	return core.Meeting{
		ID:              strconv.FormatInt(body.ID, 10),
		Topic:           nm.Topic,
		StartAt:         nm.StartAt,
		DurationMinutes: nm.DurationMinutes,
		JoinURL:         body.JoinURL,
		StartURL:        body.StartURL,
		Password:        body.Password,
	}, nil
}

func (svc *zoomService) DeleteMeeting(ctx context.Context, id string) error {
	token, err := svc.getToken(ctx)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, svc.conf.BaseURL+"/v2/meetings/"+id, nil)
	if err != nil {
		return errors.Wrap(err, "building delete request")
	}
	req.Header.Set("Authorization", "Bearer "+token)

	res, err := svc.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "deleting meeting")
	}
	defer res.Body.Close()

	// a meeting that is already gone is fine
	if res.StatusCode != http.StatusNoContent && res.StatusCode != http.StatusNotFound {
		return errors.Errorf("deleting meeting - status: %d", res.StatusCode)
	}
	return nil
}
