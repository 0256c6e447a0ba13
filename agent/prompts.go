package agent

import "fmt"

// instructionsTemplate is the system prompt for the computer-use agent.
// The %s is the page URL at the time the agent is built.
const instructionsTemplate = `You are a helpful assistant that can use a web browser.
You are currently on the following page: %s.
Do not ask follow up questions, the user will trust your judgement.`

// Instructions renders the agent system prompt for the given page URL.
func Instructions(pageURL string) string {
	if pageURL == "" {
		pageURL = "about:blank"
	}
	return fmt.Sprintf(instructionsTemplate, pageURL)
}

const extractDescription = `Read the current page and answer an instruction about its content, such as
"list the company's product offerings" or "summarise the page". Use this instead of scrolling
through long pages when you need text from the page.`
