package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"hmlr/internal/config"
	"hmlr/internal/worker/tasks"

	"github.com/hibiken/asynq"
)

// Client 任务队列客户端接口
type Client interface {
	EnqueueGardenBlock(blockID string) error
	Close() error
}

type asynqClient struct {
	client *asynq.Client
}

// NewClient 创建任务队列客户端
func NewClient(cfg config.RedisConfig) Client {
	client := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &asynqClient{client: client}
}

func (c *asynqClient) EnqueueGardenBlock(blockID string) error {
	payload, err := json.Marshal(tasks.GardenBlockPayload{BlockID: blockID})
	if err != nil {
		return fmt.Errorf("marshal payload failed: %w", err)
	}

	task := asynq.NewTask(tasks.TypeGardenBlock, payload)

	// 以 block_id 作为任务 ID 去重:同一块最多只有一个园丁任务在队列中
	// (并发园丁会对 BlockMetadata 产生竞写,调度侧必须保证 at-most-once)
	info, err := c.client.Enqueue(task,
		asynq.TaskID("garden:"+blockID),
		asynq.MaxRetry(3),
		asynq.Timeout(10*time.Minute),
		asynq.Queue("memory"), // 记忆管线专用队列
	)
	if err != nil {
		return fmt.Errorf("enqueue task failed: %w", err)
	}

	_ = info // 忽略 info
	return nil
}

func (c *asynqClient) Close() error {
	return c.client.Close()
}
