package main

import (
	"context"
	"log"

	"github.com/hibiken/asynq"

	"accesslog-backend/internal/domains/accesslog/job"
	"accesslog-backend/pkg/container"
)

// asynqServer wrap asynq.Server cho graceful shutdown.
type asynqServer struct {
	*asynq.Server
}

// setupAsynqServer tạo server, đăng ký handler và start consume.
func setupAsynqServer(c *container.Container) *asynqServer {
	mux := asynq.NewServeMux()
	mux.Handle(job.TaskTypeIngest, job.NewIngestHandler(c.Service))

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr: c.Config.Queue.RedisAddr,
			DB:   c.Config.Queue.RedisDB,
		},
		asynq.Config{
			Queues: map[string]int{
				"high":    20,
				"default": 10,
				"low":     5,
			},
			Concurrency: c.Config.Queue.Concurrency,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Printf("[Asynq] ❌ Task failed - Type: %s, Error: %v", task.Type(), err)
			}),
		},
	)

	go func() {
		log.Println("[Worker] Starting...")
		if err := srv.Run(mux); err != nil {
			log.Fatalf("[Worker] Failed: %v", err)
		}
	}()

	return &asynqServer{Server: srv}
}

// Shutdown dừng server, chờ task in-flight xong.
func (s *asynqServer) Shutdown() {
	log.Println("[Worker] Shutting down...")
	s.Server.Shutdown()
	log.Println("[Worker] ✓ Gracefully stopped")
}
