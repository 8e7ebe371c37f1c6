package main

import (
	"fmt"
	"log"
	"net/http"

	handler "board-collab-backend/api"
	"board-collab-backend/pkg/config"
)

// 独立运行入口：将serverless处理器挂到一个普通的HTTP服务器上
func main() {
	cfg := config.GetCached()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("❌ Configuration error: %v", err)
	}

	addr := ":" + cfg.Port
	fmt.Printf("🚀 Server listening on %s (environment: %s)\n", addr, cfg.Environment)

	if err := http.ListenAndServe(addr, http.HandlerFunc(handler.Handler)); err != nil {
		log.Fatalf("❌ Server failed: %v", err)
	}
}
