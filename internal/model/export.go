package model

// QuizExport is the top-level JSON structure for sharing a quiz.
type QuizExport struct {
	Sets [][]QuestionExport `json:"sets"`
}

// QuestionExport is one question in the exported JSON.
type QuestionExport struct {
	Question string   `json:"question"`
	Answers  []string `json:"answers"`
	Correct  *int     `json:"correct"`
}

// TopicExport is a named quiz as handed to the share/QR layer.
type TopicExport struct {
	Name    string `json:"name"`
	Payload string `json:"payload"`
}
