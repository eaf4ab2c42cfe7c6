// Package notifier turns a cycle's issues into notifications and delivers
// them through the configured channels (mail, webhook, log).
//
// # Contract
//
// The Dispatcher:
//  1. Receives every issue found during a cycle
//  2. Reports "no issues" when the list is empty
//  3. Asks the suppression manager which issues were notified recently and
//     reports "all suppressed" when none survive
//  4. Otherwise sends the full issue list, not only the survivors, and
//     records a notification for every issue
//
// # Routing
//
// The Router merges the authority→destination maps of all issues (last
// writer wins) and partitions them into authorities without contact
// information, cc addresses and bcc addresses. The detailed body is one
// "SEVERITY: message" line per issue. A terse copy with a
// "[consensus-health] " prefix per line goes to the announce address.
//
// # Types
//
//	type Dispatcher struct { ... }
//	func NewDispatcher(logger *zap.Logger, suppressor Suppressor, router *Router, opts DispatcherOptions) *Dispatcher
//	func (d *Dispatcher) Notify(ctx context.Context, issues []issue.Issue) (Result, error)
//
//	type Sender interface {
//	    Name() string
//	    Send(ctx context.Context, msg Message) error
//	}
package notifier
