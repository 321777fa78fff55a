package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/blogsphare/sphare"
	"github.com/blogsphare/sphare/transport/rest"
	"github.com/gofiber/fiber/v2"
)

// APIError is a non 2xx answer of the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server responded %d: %s", e.StatusCode, e.Message)
}

// Client talks to the /api endpoints of a sphare server.
type Client struct {
	// Server address, for example http://localhost:3000.
	BaseUrl string
	// Per request timeout, 10s when zero.
	Timeout time.Duration
}

func (c *Client) timeout(ctx context.Context) time.Duration {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}
	return timeout
}

func (c *Client) do(ctx context.Context, method string, path string, reqBody interface{}, out interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	agent := fiber.AcquireAgent()
	req := agent.Request()
	req.Header.SetMethod(method)
	req.SetRequestURI(strings.TrimRight(c.BaseUrl, "/") + "/api" + path)
	agent.Timeout(c.timeout(ctx))

	if reqBody != nil {
		body, err := json.Marshal(reqBody)
		if err != nil {
			fiber.ReleaseAgent(agent)
			return fmt.Errorf("marshal body: %w", err)
		}
		req.Header.SetContentType(fiber.MIMEApplicationJSON)
		req.SetBody(body)
	}

	if err := agent.Parse(); err != nil {
		fiber.ReleaseAgent(agent)
		return fmt.Errorf("agent parse: %w", err)
	}

	// Bytes releases the agent
	statusCode, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return fmt.Errorf("agent bytes: %w", errors.Join(errs...))
	}

	if statusCode < 200 || statusCode > 299 {
		var errResp rest.ErrorResponse
		if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
			errResp.Error = string(body)
		}
		return &APIError{StatusCode: statusCode, Message: errResp.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("unmarshal body: %w", err)
	}
	return nil
}

func toProfile(r rest.ProfileResponse) sphare.Profile {
	follower := make([]sphare.Email, 0, len(r.Follower))
	for _, e := range r.Follower {
		follower = append(follower, sphare.Email(e))
	}
	following := make([]sphare.Email, 0, len(r.Following))
	for _, e := range r.Following {
		following = append(following, sphare.Email(e))
	}
	blogs := make([]string, len(r.Blogs))
	copy(blogs, r.Blogs)
	return sphare.Profile{
		Email:      sphare.Email(r.Email),
		Username:   r.Username,
		Bio:        r.Bio,
		ProfilePic: r.ProfilePic,
		Follower:   follower,
		Following:  following,
		Blogs:      blogs,
		CreatedAt:  r.CreatedAt,
	}
}

func toProfiles(responses []rest.ProfileResponse) []sphare.Profile {
	profiles := make([]sphare.Profile, 0, len(responses))
	for _, r := range responses {
		profiles = append(profiles, toProfile(r))
	}
	return profiles
}

// FollowFollowing sends a follow intent and returns the authoritative state.
func (c *Client) FollowFollowing(ctx context.Context, actor, target sphare.Email, intent sphare.Intent) (sphare.FollowResult, error) {
	var resp rest.FollowResponse
	err := c.do(ctx, fiber.MethodPost, "/followfollowing", rest.FollowRequest{
		CurrentUserEmail: string(actor),
		ProfileUserEmail: string(target),
		Action:           string(intent),
	}, &resp)
	if err != nil {
		return sphare.FollowResult{}, err
	}
	return sphare.FollowResult{
		Actor:       toProfile(resp.CurrentUserProfile),
		Target:      toProfile(resp.TargetProfile),
		IsFollowing: resp.IsFollowing,
	}, nil
}

// ProfileData returns sphare.ErrProfileNotFound when the email has no profile.
func (c *Client) ProfileData(ctx context.Context, email sphare.Email) (sphare.Profile, error) {
	var resp []rest.ProfileResponse
	body := map[string]string{"email": string(email)}
	if err := c.do(ctx, fiber.MethodPost, "/myprofiledata", body, &resp); err != nil {
		return sphare.Profile{}, err
	}
	if len(resp) == 0 {
		return sphare.Profile{}, sphare.ErrProfileNotFound
	}
	return toProfile(resp[0]), nil
}

func (c *Client) FollowerProfiles(ctx context.Context, emails []sphare.Email) ([]sphare.Profile, error) {
	return c.profilesByEmails(ctx, "/followerProfiles", emails)
}

func (c *Client) FollowingProfiles(ctx context.Context, emails []sphare.Email) ([]sphare.Profile, error) {
	return c.profilesByEmails(ctx, "/followingProfiles", emails)
}

func (c *Client) profilesByEmails(ctx context.Context, path string, emails []sphare.Email) ([]sphare.Profile, error) {
	s := make([]string, 0, len(emails))
	for _, e := range emails {
		s = append(s, string(e))
	}
	var resp []rest.ProfileResponse
	if err := c.do(ctx, fiber.MethodPost, path, map[string][]string{"emails": s}, &resp); err != nil {
		return nil, err
	}
	return toProfiles(resp), nil
}

func (c *Client) Profiles(ctx context.Context) ([]sphare.Profile, error) {
	var resp []rest.ProfileResponse
	if err := c.do(ctx, fiber.MethodGet, "/usersprofile", nil, &resp); err != nil {
		return nil, err
	}
	return toProfiles(resp), nil
}

// Applier binds the client to one viewer and target for a FollowToggle.
func (c *Client) Applier(viewer, target sphare.Email) ApplyFunc {
	return func(ctx context.Context, intent sphare.Intent) (bool, error) {
		result, err := c.FollowFollowing(ctx, viewer, target, intent)
		if err != nil {
			return false, err
		}
		return result.IsFollowing, nil
	}
}
