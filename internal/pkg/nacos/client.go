package nacos

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/nacos-group/nacos-sdk-go/v2/clients"
	"github.com/nacos-group/nacos-sdk-go/v2/common/constant"
	"github.com/nacos-group/nacos-sdk-go/v2/model"
	"github.com/nacos-group/nacos-sdk-go/v2/vo"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const defaultGroup = "DEFAULT_GROUP"

// Registry 是服务注册与发现所需的命名服务能力子集，naming_client.INamingClient 满足该接口。
type Registry interface {
	RegisterInstance(param vo.RegisterInstanceParam) (bool, error)
	DeregisterInstance(param vo.DeregisterInstanceParam) (bool, error)
	SelectOneHealthyInstance(param vo.SelectOneHealthInstanceParam) (*model.Instance, error)
}

// Options 描述如何连接 Nacos。
type Options struct {
	ServerAddrs string // "host1:port1,host2:port2"
	Namespace   string
	Group       string
	LogDir      string
	CacheDir    string
}

// Instance 标识注册到 Nacos 的一个服务实例。
type Instance struct {
	Service string
	IP      string
	Port    int
}

func (i Instance) String() string {
	return i.Service + "@" + net.JoinHostPort(i.IP, strconv.Itoa(i.Port))
}

// Client 在某个分组内注册、注销和解析服务实例。
type Client struct {
	registry Registry
	group    string
}

// New 按 Options 建立命名服务连接。
func New(opts Options) (*Client, error) {
	servers, err := ParseServerAddrs(opts.ServerAddrs)
	if err != nil {
		return nil, err
	}
	if opts.Namespace == "" {
		log.Warn().Msg("Nacos namespace is empty, falling back to public namespace")
	}
	if opts.LogDir == "" {
		opts.LogDir = "/tmp/nacos/log"
	}
	if opts.CacheDir == "" {
		opts.CacheDir = "/tmp/nacos/cache"
	}

	cc := constant.NewClientConfig(
		constant.WithNamespaceId(opts.Namespace),
		constant.WithNotLoadCacheAtStart(true),
		constant.WithLogDir(opts.LogDir),
		constant.WithCacheDir(opts.CacheDir),
		constant.WithLogLevel("warn"),
	)
	naming, err := clients.NewNamingClient(vo.NacosClientParam{ClientConfig: cc, ServerConfigs: servers})
	if err != nil {
		return nil, errors.Wrap(err, "create nacos naming client")
	}

	c := NewWithRegistry(naming, opts.Group)
	log.Info().Str("namespace", opts.Namespace).Str("group", c.group).Int("servers", len(servers)).Msg("Nacos naming client ready")
	return c, nil
}

// NewWithRegistry 用现成的 Registry 构造 Client，group 为空时使用 Nacos 默认分组。
func NewWithRegistry(registry Registry, group string) *Client {
	if group == "" {
		group = defaultGroup
	}
	return &Client{registry: registry, group: group}
}

// ParseServerAddrs 把逗号分隔的 host:port 列表解析为服务端配置，空白项会被忽略。
func ParseServerAddrs(addrs string) ([]constant.ServerConfig, error) {
	var servers []constant.ServerConfig
	for _, raw := range strings.Split(addrs, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		host, portStr, err := net.SplitHostPort(raw)
		if err != nil || host == "" {
			return nil, errors.Errorf("nacos server address %q is not host:port", raw)
		}
		port, err := strconv.ParseUint(portStr, 10, 16)
		if err != nil || port == 0 {
			return nil, errors.Errorf("nacos server address %q has invalid port", raw)
		}
		servers = append(servers, *constant.NewServerConfig(host, port))
	}
	if len(servers) == 0 {
		return nil, errors.New("no nacos server address configured")
	}
	return servers, nil
}

// Register 以临时节点注册实例，心跳断开后 Nacos 会自动摘除。
func (c *Client) Register(inst Instance) error {
	ok, err := c.registry.RegisterInstance(vo.RegisterInstanceParam{
		ServiceName: inst.Service,
		GroupName:   c.group,
		Ip:          inst.IP,
		Port:        uint64(inst.Port),
		Weight:      10,
		Enable:      true,
		Healthy:     true,
		Ephemeral:   true,
	})
	if err != nil {
		return errors.Wrapf(err, "register %s", inst)
	}
	if !ok {
		return errors.Errorf("nacos rejected registration of %s", inst)
	}
	log.Info().Str("instance", inst.String()).Msg("Registered with Nacos")
	return nil
}

// Deregister 注销实例。
func (c *Client) Deregister(inst Instance) error {
	ok, err := c.registry.DeregisterInstance(vo.DeregisterInstanceParam{
		ServiceName: inst.Service,
		GroupName:   c.group,
		Ip:          inst.IP,
		Port:        uint64(inst.Port),
		Ephemeral:   true,
	})
	if err != nil {
		return errors.Wrapf(err, "deregister %s", inst)
	}
	if !ok {
		return errors.Errorf("nacos rejected deregistration of %s", inst)
	}
	log.Info().Str("instance", inst.String()).Msg("Deregistered from Nacos")
	return nil
}

// Resolve 选出 service 的一个健康实例，返回其 HTTP 基础地址。
func (c *Client) Resolve(service string) (string, error) {
	picked, err := c.registry.SelectOneHealthyInstance(vo.SelectOneHealthInstanceParam{
		ServiceName: service,
		GroupName:   c.group,
	})
	if err != nil {
		return "", errors.Wrapf(err, "select healthy instance of %s", service)
	}
	if picked == nil {
		return "", errors.Errorf("no healthy instance of %s", service)
	}
	return fmt.Sprintf("http://%s", net.JoinHostPort(picked.Ip, strconv.FormatUint(picked.Port, 10))), nil
}
