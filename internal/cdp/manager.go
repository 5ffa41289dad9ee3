package cdp

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/mafredri/cdp"
	"github.com/mafredri/cdp/devtool"
	"github.com/mafredri/cdp/protocol/browser"
	"github.com/mafredri/cdp/protocol/network"
	"github.com/mafredri/cdp/protocol/storage"
	"github.com/mafredri/cdp/protocol/target"
	"github.com/mafredri/cdp/rpcc"

	"bidimapper/internal/logger"
	"bidimapper/pkg/domain"
)

// Manager 南向 CDP 连接管理：一条浏览器级连接加每个页面 target 的专属连接
type Manager struct {
	devtoolsURL string

	ctx    context.Context
	cancel context.CancelFunc

	browserConn   *rpcc.Conn
	browserClient *cdp.Client

	mu      sync.RWMutex
	targets map[string]*Target

	sink EventSink
	log  logger.Logger

	acceptInsecureCerts bool
}

// NewManager 创建管理器
func NewManager(devtoolsURL string, sink EventSink, acceptInsecureCerts bool, l logger.Logger) *Manager {
	if l == nil {
		l = logger.NewNop()
	}
	return &Manager{
		devtoolsURL:         devtoolsURL,
		targets:             make(map[string]*Target),
		sink:                sink,
		log:                 l,
		acceptInsecureCerts: acceptInsecureCerts,
	}
}

// Connect 建立浏览器级连接，开启 target 发现并附加现存页面
func (m *Manager) Connect(ctx context.Context) error {
	m.ctx, m.cancel = context.WithCancel(ctx)

	dt := devtool.New(m.devtoolsURL)
	v, err := dt.Version(m.ctx)
	if err != nil {
		return domain.NewError(domain.ErrSessionNotCreated, "cannot reach browser at %s: %s", m.devtoolsURL, err)
	}
	conn, err := rpcc.DialContext(m.ctx, v.WebSocketDebuggerURL)
	if err != nil {
		return domain.NewError(domain.ErrSessionNotCreated, "browser handshake failed: %s", err)
	}
	m.browserConn = conn
	m.browserClient = cdp.NewClient(conn)

	if err := m.watchTargets(); err != nil {
		return domain.UnknownError(err)
	}

	targets, err := dt.List(m.ctx)
	if err != nil {
		return domain.UnknownError(err)
	}
	for _, t := range targets {
		if t.Type != devtool.Page {
			continue
		}
		if err := m.attach(string(t.ID), t.WebSocketDebuggerURL, ""); err != nil {
			m.log.Warn("附加现存页面失败", "target", t.ID, "error", err)
		}
	}
	m.log.Info("已连接浏览器", "devtools", m.devtoolsURL, "targets", len(targets))
	return nil
}

// Close 断开全部连接
func (m *Manager) Close() error {
	if m.cancel != nil {
		m.cancel()
	}
	m.mu.Lock()
	ts := make([]*Target, 0, len(m.targets))
	for _, t := range m.targets {
		ts = append(ts, t)
	}
	m.targets = make(map[string]*Target)
	m.mu.Unlock()
	for _, t := range ts {
		t.close()
	}
	if m.browserConn != nil {
		return m.browserConn.Close()
	}
	return nil
}

// watchTargets 订阅浏览器级 target 创建/销毁
func (m *Manager) watchTargets() error {
	created, err := m.browserClient.Target.TargetCreated(m.ctx)
	if err != nil {
		return err
	}
	destroyed, err := m.browserClient.Target.TargetDestroyed(m.ctx)
	if err != nil {
		return err
	}
	if err := m.browserClient.Target.SetDiscoverTargets(m.ctx, &target.SetDiscoverTargetsArgs{Discover: true}); err != nil {
		return err
	}

	go func() {
		defer created.Close()
		for {
			ev, err := created.Recv()
			if err != nil {
				return
			}
			if ev.TargetInfo.Type != "page" {
				continue
			}
			id := string(ev.TargetInfo.TargetID)
			if m.Target(id) != nil {
				continue
			}
			bc := ""
			if ev.TargetInfo.BrowserContextID != nil {
				bc = string(*ev.TargetInfo.BrowserContextID)
			}
			if err := m.attach(id, m.pageSocketURL(id), bc); err != nil {
				m.log.Warn("附加新 target 失败", "target", id, "error", err)
			}
		}
	}()
	go func() {
		defer destroyed.Close()
		for {
			ev, err := destroyed.Recv()
			if err != nil {
				return
			}
			m.detach(string(ev.TargetID))
		}
	}()
	return nil
}

// attach 为 target 建立专属连接并启动事件泵
func (m *Manager) attach(targetID, wsURL, browserContextID string) error {
	conn, err := rpcc.DialContext(m.ctx, wsURL)
	if err != nil {
		return err
	}
	t := newTarget(m.ctx, targetID, browserContextID, conn, m.log)
	if err := t.enable(m.acceptInsecureCerts); err != nil {
		conn.Close()
		return err
	}

	m.mu.Lock()
	m.targets[targetID] = t
	m.mu.Unlock()

	info := target.Info{TargetID: target.ID(targetID), Type: "page"}
	if browserContextID != "" {
		bc := browser.ContextID(browserContextID)
		info.BrowserContextID = &bc
	}
	m.sink.TargetAttached(t, info)

	if err := t.pump(m.sink); err != nil {
		return err
	}
	m.log.Debug("已附加 target", "target", targetID)
	return nil
}

func (m *Manager) detach(targetID string) {
	m.mu.Lock()
	t, ok := m.targets[targetID]
	delete(m.targets, targetID)
	m.mu.Unlock()
	if !ok {
		return
	}
	t.close()
	m.sink.TargetDetached(targetID)
	m.log.Debug("已分离 target", "target", targetID)
}

// Target 按 id 查找已附加 target，未知返回 nil
func (m *Manager) Target(targetID string) *Target {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.targets[targetID]
}

// EachTarget 在快照上遍历已附加 target
func (m *Manager) EachTarget(fn func(*Target)) {
	m.mu.RLock()
	ts := make([]*Target, 0, len(m.targets))
	for _, t := range m.targets {
		ts = append(ts, t)
	}
	m.mu.RUnlock()
	for _, t := range ts {
		fn(t)
	}
}

// pageSocketURL 从 devtools HTTP 端点推导页面 ws 端点
func (m *Manager) pageSocketURL(targetID string) string {
	u, err := url.Parse(m.devtoolsURL)
	if err != nil {
		return fmt.Sprintf("ws://127.0.0.1:9222/devtools/page/%s", targetID)
	}
	scheme := "ws"
	if u.Scheme == "https" {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://%s/devtools/page/%s", scheme, u.Host, targetID)
}

// CreateTarget 新建页面 target，返回 target id
func (m *Manager) CreateTarget(ctx context.Context, pageURL, browserContextID string, background, newWindow bool) (string, error) {
	args := &target.CreateTargetArgs{URL: pageURL}
	if browserContextID != "" {
		bc := browser.ContextID(browserContextID)
		args.BrowserContextID = &bc
	}
	if background {
		bg := true
		args.Background = &bg
	}
	if newWindow {
		nw := true
		args.NewWindow = &nw
	}
	reply, err := m.browserClient.Target.CreateTarget(ctx, args)
	if err != nil {
		return "", err
	}
	return string(reply.TargetID), nil
}

// CloseTarget 关闭页面 target
func (m *Manager) CloseTarget(ctx context.Context, targetID string) error {
	_, err := m.browserClient.Target.CloseTarget(ctx, &target.CloseTargetArgs{TargetID: target.ID(targetID)})
	return err
}

// CreateBrowserContext 新建隔离的 browser context
func (m *Manager) CreateBrowserContext(ctx context.Context) (string, error) {
	reply, err := m.browserClient.Target.CreateBrowserContext(ctx, nil)
	if err != nil {
		return "", err
	}
	return string(reply.BrowserContextID), nil
}

// DisposeBrowserContext 销毁 browser context
func (m *Manager) DisposeBrowserContext(ctx context.Context, id string) error {
	return m.browserClient.Target.DisposeBrowserContext(ctx, &target.DisposeBrowserContextArgs{BrowserContextID: browser.ContextID(id)})
}

// CloseBrowser 关闭浏览器进程
func (m *Manager) CloseBrowser(ctx context.Context) error {
	return m.browserClient.Browser.Close(ctx)
}

// SetPermission 设置权限授予状态
func (m *Manager) SetPermission(ctx context.Context, name, setting, origin, browserContextID string) error {
	args := &browser.SetPermissionArgs{
		Permission: browser.PermissionDescriptor{Name: name},
		Setting:    browser.PermissionSetting(setting),
	}
	if origin != "" {
		args.Origin = &origin
	}
	if browserContextID != "" {
		bc := browser.ContextID(browserContextID)
		args.BrowserContextID = &bc
	}
	return m.browserClient.Browser.SetPermission(ctx, args)
}

// GetCookies 读取 cookie，可按 browser context 过滤
func (m *Manager) GetCookies(ctx context.Context, browserContextID string) ([]network.Cookie, error) {
	args := &storage.GetCookiesArgs{}
	if browserContextID != "" {
		bc := browser.ContextID(browserContextID)
		args.BrowserContextID = &bc
	}
	reply, err := m.browserClient.Storage.GetCookies(ctx, args)
	if err != nil {
		return nil, err
	}
	return reply.Cookies, nil
}

// SetCookies 写入 cookie
func (m *Manager) SetCookies(ctx context.Context, cookies []network.CookieParam, browserContextID string) error {
	args := &storage.SetCookiesArgs{Cookies: cookies}
	if browserContextID != "" {
		bc := browser.ContextID(browserContextID)
		args.BrowserContextID = &bc
	}
	return m.browserClient.Storage.SetCookies(ctx, args)
}

// DeleteCookies 清除 browser context 的全部 cookie
func (m *Manager) DeleteCookies(ctx context.Context, browserContextID string) error {
	args := &storage.ClearCookiesArgs{}
	if browserContextID != "" {
		bc := browser.ContextID(browserContextID)
		args.BrowserContextID = &bc
	}
	return m.browserClient.Storage.ClearCookies(ctx, args)
}
