package ticktick

// project is a TickTick project (task list).
type project struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// projectData is the payload of GET /project/{id}/data.
type projectData struct {
	Tasks []task `json:"tasks"`
}

// task is a TickTick task as returned by the Open API.
type task struct {
	ID            string `json:"id"`
	ProjectID     string `json:"projectId"`
	Title         string `json:"title"`
	Content       string `json:"content"`
	Kind          string `json:"kind"`
	DueDate       string `json:"dueDate"`
	StartDate     string `json:"startDate"`
	CompletedTime string `json:"completedTime"`
	Status        int    `json:"status"`
	Priority      int    `json:"priority"`

	// ProjectName is filled in locally while flattening projects.
	ProjectName string `json:"projectName,omitempty"`
}

// statusCompleted is the Status value TickTick uses for finished tasks.
const statusCompleted = 2
