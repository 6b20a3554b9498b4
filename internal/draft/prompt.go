package draft

// systemPrompt instructs the model to emit only the override fields it can
// infer from the description. Unknown fields stay absent so defaults apply.
const systemPrompt = `You draft configuration for a small game from a short description.
Respond with a single JSON object. Include only fields you can infer:
  "title": string, a short catchy game title
  "difficulty": "easy" | "normal" | "hard"
  "primary_color": "#RRGGBB" hex color matching the described mood
  "accent_color": "#RRGGBB" hex color
  "player_speed": number between 0.5 and 20
  "lives": integer between 1 and 9
  "session_seconds": integer between 30 and 600
  "keywords": array of up to 8 short lowercase tags
Do not include any other fields, commentary, or markdown.`
