package usecase

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/fairyhunter13/subscription-fleet/internal/domain"
)

var taskValidator = validator.New()

// LoadTasksFile reads a JSON array of tasks from path (the `--tasks=<file>`
// flag in spec §6), validating every entry before returning so a malformed
// operator-supplied file fails fast instead of surfacing as a confusing
// mid-batch executor error.
func LoadTasksFile(path string) ([]Task, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("op=usecase.LoadTasksFile: %w: %v", domain.ErrInvalidArgument, err)
	}
	var tasks []Task
	if err := json.Unmarshal(raw, &tasks); err != nil {
		return nil, fmt.Errorf("op=usecase.LoadTasksFile: %w: %v", domain.ErrSchemaInvalid, err)
	}
	for i, task := range tasks {
		if err := taskValidator.Struct(task); err != nil {
			return nil, fmt.Errorf("op=usecase.LoadTasksFile: task %d: %w: %v", i, domain.ErrSchemaInvalid, err)
		}
	}
	return tasks, nil
}
