package cdp

import (
	"github.com/mafredri/cdp/protocol/fetch"
	"github.com/mafredri/cdp/protocol/network"
	"github.com/mafredri/cdp/protocol/page"
	"github.com/mafredri/cdp/protocol/runtime"
	"github.com/mafredri/cdp/protocol/target"
)

// EventSink 接收某个 target 会话翻译前的 CDP 事件。
// 同一 target 的回调按接收顺序串行执行。
type EventSink interface {
	TargetAttached(t *Target, info target.Info)
	TargetDetached(targetID string)

	FrameAttached(t *Target, ev *page.FrameAttachedReply)
	FrameNavigated(t *Target, ev *page.FrameNavigatedReply)
	FrameDetached(t *Target, ev *page.FrameDetachedReply)
	NavigatedWithinDocument(t *Target, ev *page.NavigatedWithinDocumentReply)
	LifecycleEvent(t *Target, ev *page.LifecycleEventReply)
	DialogOpening(t *Target, ev *page.JavascriptDialogOpeningReply)
	DialogClosed(t *Target, ev *page.JavascriptDialogClosedReply)
	FileChooserOpened(t *Target, ev *page.FileChooserOpenedReply)

	ExecutionContextCreated(t *Target, ev *runtime.ExecutionContextCreatedReply)
	ExecutionContextDestroyed(t *Target, ev *runtime.ExecutionContextDestroyedReply)
	ConsoleAPICalled(t *Target, ev *runtime.ConsoleAPICalledReply)
	ExceptionThrown(t *Target, ev *runtime.ExceptionThrownReply)

	RequestWillBeSent(t *Target, ev *network.RequestWillBeSentReply)
	ResponseReceived(t *Target, ev *network.ResponseReceivedReply)
	LoadingFinished(t *Target, ev *network.LoadingFinishedReply)
	LoadingFailed(t *Target, ev *network.LoadingFailedReply)

	RequestPaused(t *Target, ev *fetch.RequestPausedReply)
	AuthRequired(t *Target, ev *fetch.AuthRequiredReply)
}
