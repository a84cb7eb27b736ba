package enricher

import "fmt"

func positionPrompt(text string) string {
	return fmt.Sprintf(`You are a CV analyzer. Extract the current or most recent job title/position from the following CV/resume text.

Look for:
- Current position or job title
- Most recent role if multiple positions are listed
- Professional title (e.g., "Software Engineer", "Marketing Manager", "Data Scientist")
- If no clear position is found, return "Not Specified"

Respond with ONLY the job title/position in 2-5 words maximum. Do not include company name, dates, or any other information.

CV Content:
%s

Position/Job Title:`, text)
}

func summaryPrompt(text string) string {
	return fmt.Sprintf(`You are a professional CV analyzer. Analyze the following CV/resume and create a concise, well-structured summary in 150-200 words.

The summary should include:
1. Professional background and experience level
2. Key technical and soft skills
3. Education highlights
4. Notable achievements or accomplishments
5. Career focus or specialization

Write in a clear, professional tone. Use bullet points or short paragraphs.

CV Content:
%s

Please provide the summary now:`, text)
}
