// Package app 管理 hdxlab 服務中長期運行元件的啟動與關閉。
package app

import "context"

// Component 是可啟動、可關閉的長期元件（目前只有 HTTP server）。
//
// Run 阻塞到元件停止；Shutdown 要求優雅關閉，需遵守 ctx 的期限。
type Component interface {
	Run() error
	Shutdown(ctx context.Context) error
}
