package tasks

// Task Types
const (
	TypeGardenBlock = "memory:garden_block"
)

// GardenBlockPayload 园丁任务载荷
type GardenBlockPayload struct {
	BlockID string `json:"block_id"`
}
