package subscription

import "strings"

// 订阅名既可以是原子事件，也可以是模块级分组（如 "network"），
// 分组在订阅时展开为其全部原子事件。
var groups = map[string][]string{
	"browsingContext": {
		"browsingContext.contextCreated",
		"browsingContext.contextDestroyed",
		"browsingContext.navigationStarted",
		"browsingContext.navigationCommitted",
		"browsingContext.fragmentNavigated",
		"browsingContext.navigationAborted",
		"browsingContext.navigationFailed",
		"browsingContext.domContentLoaded",
		"browsingContext.load",
		"browsingContext.userPromptOpened",
		"browsingContext.userPromptClosed",
	},
	"network": {
		"network.authRequired",
		"network.beforeRequestSent",
		"network.fetchError",
		"network.responseCompleted",
		"network.responseStarted",
	},
	"script": {
		"script.message",
		"script.realmCreated",
		"script.realmDestroyed",
	},
	"log": {
		"log.entryAdded",
	},
	"input": {
		"input.fileDialogOpened",
	},
}

var atomic = func() map[string]bool {
	m := make(map[string]bool)
	for _, evs := range groups {
		for _, e := range evs {
			m[e] = true
		}
	}
	return m
}()

// Expand 展开订阅名。未知名字返回 nil。
func Expand(name string) []string {
	if evs, ok := groups[name]; ok {
		out := make([]string, len(evs))
		copy(out, evs)
		return out
	}
	if atomic[name] {
		return []string{name}
	}
	// goog:cdp.* 事件按前缀整组订阅
	if name == "goog:cdp" || strings.HasPrefix(name, "goog:cdp.") {
		return []string{name}
	}
	return nil
}

// KnownEvent 事件名（原子或分组）是否可订阅
func KnownEvent(name string) bool {
	return Expand(name) != nil
}
