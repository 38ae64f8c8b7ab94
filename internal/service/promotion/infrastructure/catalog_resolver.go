package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"bogo/internal/pkg/httpclient"
	"bogo/internal/service/promotion/domain"

	pkgerrors "github.com/pkg/errors"
)

// HTTPCollectionResolver 调用商品目录服务展开 collection。
type HTTPCollectionResolver struct {
	client  *httpclient.Client
	baseURL string
	timeout time.Duration
}

type collectionProductsResponse struct {
	ProductIDs []string `json:"productIds"`
}

func NewHTTPCollectionResolver(client *httpclient.Client, baseURL string, timeout time.Duration) *HTTPCollectionResolver {
	return &HTTPCollectionResolver{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
	}
}

// Members 依次查询每个 collection，合并去重后返回。
// 目录服务返回 404 表示该 collection 不存在，视为空集合。
func (r *HTTPCollectionResolver) Members(ctx context.Context, collectionIDs []string) ([]string, error) {
	acc := newMemberSet()
	for _, id := range collectionIDs {
		ids, err := r.fetch(ctx, id)
		if err != nil {
			return nil, pkgerrors.Wrapf(domain.ErrCollectionUnresolved, "collection %s: %v", id, err)
		}
		acc.add(ids...)
	}
	return acc.ids, nil
}

func (r *HTTPCollectionResolver) fetch(ctx context.Context, id string) ([]string, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	endpoint := fmt.Sprintf("%s/collections/%s/products", r.baseURL, url.PathEscape(id))
	var resp collectionProductsResponse
	if err := r.client.GetJSON(ctx, endpoint, &resp); err != nil {
		var statusErr *httpclient.StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	return resp.ProductIDs, nil
}

// StaticCollectionResolver 用内存中的映射展开 collection，供命令行工具和测试使用。
type StaticCollectionResolver map[string][]string

func (s StaticCollectionResolver) Members(_ context.Context, collectionIDs []string) ([]string, error) {
	acc := newMemberSet()
	for _, id := range collectionIDs {
		acc.add(s[id]...)
	}
	return acc.ids, nil
}

type memberSet struct {
	seen map[string]struct{}
	ids  []string
}

func newMemberSet() *memberSet {
	return &memberSet{seen: make(map[string]struct{}), ids: []string{}}
}

func (m *memberSet) add(ids ...string) {
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := m.seen[id]; ok {
			continue
		}
		m.seen[id] = struct{}{}
		m.ids = append(m.ids, id)
	}
}
