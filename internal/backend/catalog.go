package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/thegamersstation/gsm/internal/domain"
)

// Posts lists posts matching f.
func (c *Client) Posts(ctx context.Context, f domain.PostFilter) (*domain.Page[domain.Post], error) {
	var out domain.Page[domain.Post]
	if err := c.do(ctx, request{method: http.MethodGet, path: "/posts", query: postQuery(f, false), out: &out}); err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	return &out, nil
}

// SearchPosts runs a free-text search with filters.
func (c *Client) SearchPosts(ctx context.Context, f domain.PostFilter) (*domain.Page[domain.Post], error) {
	var out domain.Page[domain.Post]
	if err := c.do(ctx, request{method: http.MethodGet, path: "/posts/search", query: postQuery(f, true), out: &out}); err != nil {
		return nil, fmt.Errorf("search posts: %w", err)
	}
	return &out, nil
}

func (c *Client) Post(ctx context.Context, id domain.ID) (*domain.Post, error) {
	var out domain.Post
	if err := c.Do(ctx, http.MethodGet, "/posts/"+url.PathEscape(id.String()), nil, &out); err != nil {
		return nil, fmt.Errorf("get post %s: %w", id, err)
	}
	return &out, nil
}

// MyPosts lists the caller's own ads.
func (c *Client) MyPosts(ctx context.Context, f domain.PostFilter) (*domain.Page[domain.Post], error) {
	q := url.Values{}
	addPaging(q, f)
	var out domain.Page[domain.Post]
	if err := c.do(ctx, request{method: http.MethodGet, path: "/posts/my-ads", query: q, out: &out}); err != nil {
		return nil, fmt.Errorf("list my posts: %w", err)
	}
	return &out, nil
}

func (c *Client) Categories(ctx context.Context) ([]domain.Category, error) {
	var out []domain.Category
	if err := c.Do(ctx, http.MethodGet, "/categories", nil, &out); err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return out, nil
}

// Cities lists cities, optionally within a region.
func (c *Client) Cities(ctx context.Context, regionID domain.ID) ([]domain.City, error) {
	var q url.Values
	if !regionID.IsZero() {
		q = url.Values{"regionId": {regionID.String()}}
	}
	var out []domain.City
	if err := c.do(ctx, request{method: http.MethodGet, path: "/cities", query: q, out: &out}); err != nil {
		return nil, fmt.Errorf("list cities: %w", err)
	}
	return out, nil
}

// Profile returns the caller's profile.
func (c *Client) Profile(ctx context.Context) (*domain.Profile, error) {
	var out domain.Profile
	if err := c.Do(ctx, http.MethodGet, "/users/profile", nil, &out); err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return &out, nil
}

// UpdateProfile saves the caller's profile. A completed profile is reflected
// in the stored session user.
func (c *Client) UpdateProfile(ctx context.Context, u domain.ProfileUpdate) (*domain.Profile, error) {
	var out domain.Profile
	if err := c.Do(ctx, http.MethodPut, "/users/profile", u, &out); err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	if out.ProfileCompleted {
		user, err := c.tokens.User()
		if err != nil {
			return nil, err
		}
		if user == nil {
			user = &domain.User{}
		}
		user.ProfileCompleted = true
		if err := c.tokens.SetUser(*user); err != nil {
			return nil, err
		}
	}
	return &out, nil
}

// PublicProfile returns another user's public profile.
func (c *Client) PublicProfile(ctx context.Context, id domain.ID) (*domain.PublicUser, error) {
	var out domain.PublicUser
	if err := c.Do(ctx, http.MethodGet, "/users/"+url.PathEscape(id.String())+"/public", nil, &out); err != nil {
		return nil, fmt.Errorf("get user %s: %w", id, err)
	}
	return &out, nil
}

func postQuery(f domain.PostFilter, search bool) url.Values {
	q := url.Values{}
	if search && f.Query != "" {
		q.Set("q", f.Query)
	}
	for k, v := range map[string]string{
		"categoryId": f.CategoryID,
		"cityId":     f.CityID,
		"regionId":   f.RegionID,
		"type":       f.Type,
		"condition":  f.Condition,
		"minPrice":   f.MinPrice,
		"maxPrice":   f.MaxPrice,
	} {
		if v != "" {
			q.Set(k, v)
		}
	}
	addPaging(q, f)
	return q
}

func addPaging(q url.Values, f domain.PostFilter) {
	if f.Page != nil {
		q.Set("page", strconv.Itoa(*f.Page))
	}
	if f.Size != nil {
		q.Set("size", strconv.Itoa(*f.Size))
	}
	if f.SortBy != "" {
		q.Set("sortBy", f.SortBy)
	}
	if f.Direction != "" {
		q.Set("direction", f.Direction)
	}
}
