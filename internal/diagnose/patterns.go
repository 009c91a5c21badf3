package diagnose

import "regexp"

// Pattern is one known issue: a regular expression over log text and the
// remediation shown to the user when it matches.
type Pattern struct {
	Name        string
	Expr        *regexp.Regexp
	Remediation string
}

// defaultPatterns is evaluated in declaration order; results keep this order.
var defaultPatterns = []Pattern{
	{
		Name: "Ollama Connection Refused",
		Expr: regexp.MustCompile(`(?i)ECONNREFUSED.*11434|connect ECONNREFUSED 127\.0\.0\.1:11434`),
		Remediation: "**Ollama isn't running.**\n\n" +
			"Start the Ollama service:\n" +
			"- **Windows:** launch the Ollama application from the Start menu\n" +
			"- **macOS/Linux:** run `ollama serve` in a terminal\n\n" +
			"Then try again.",
	},
	{
		Name: "Ollama Not Found",
		Expr: regexp.MustCompile(`(?i)FileNotFoundError.*ollama|ollama.*ENOENT|'ollama' is not recognized`),
		Remediation: "**Ollama is not installed or not on your PATH.**\n\n" +
			"1. Install Ollama from [ollama.ai](https://ollama.ai/)\n" +
			"2. Restart your terminal\n" +
			"3. Check with `ollama --version`",
	},
	{
		Name: "Ollama Model Not Found",
		Expr: regexp.MustCompile(`(?i)model.*not found|pull.*model|Error: model '.*' not found`),
		Remediation: "**The embedding model hasn't been downloaded.**\n\n" +
			"Pull it with:\n```bash\nollama pull nomic-embed-text\n```\n" +
			"This can take a few minutes.",
	},
	{
		Name: "Java Version Too Old",
		Expr: regexp.MustCompile(`(?i)java version "?(1\.|[0-9]|1[0-9]|2[0-3])[\."]`),
		Remediation: "**Your Java version is too old.** Java 24 or newer is required.\n\n" +
			"1. Install Java 24+ from [Adoptium](https://adoptium.net/)\n" +
			"2. Tick \"Add to PATH\" during installation\n" +
			"3. Restart your terminal and check with `java -version`",
	},
	{
		Name: "Java Not Found",
		Expr: regexp.MustCompile(`(?i)java.*ENOENT|'java' is not recognized|java: command not found`),
		Remediation: "**Java is not installed or not on your PATH.**\n\n" +
			"1. Install Java 24+ from [Adoptium](https://adoptium.net/)\n" +
			"2. Tick \"Add to PATH\" during installation\n" +
			"3. Restart your terminal and check with `java -version`",
	},
	{
		// Interpreter banners are printed with a capital P, so this one
		// stays case-sensitive.
		Name: "Python Version Too Old",
		Expr: regexp.MustCompile(`Python 3\.[0-9]\.`),
		Remediation: "**Your Python version is too old.** Python 3.10 or newer is required.\n\n" +
			"1. Install Python 3.10+ from [python.org](https://www.python.org/downloads/)\n" +
			"2. Tick \"Add to PATH\" during installation\n" +
			"3. Restart your terminal and check with `python --version`",
	},
	{
		Name: "VoyageAI Unauthorized",
		Expr: regexp.MustCompile(`(?i)401.*voyage|voyage.*unauthorized|Invalid API key.*voyage`),
		Remediation: "**Your VoyageAI API key is missing or invalid.**\n\n" +
			"1. Get a key from [VoyageAI](https://www.voyageai.com/)\n" +
			"2. Run setup again and enter it\n" +
			"3. Or set `VOYAGE_API_KEY=your_key_here`",
	},
	{
		Name: "VoyageAI Rate Limited",
		Expr: regexp.MustCompile(`(?i)429.*voyage|voyage.*rate.?limit|Too many requests.*voyage`),
		Remediation: "**VoyageAI rate limit hit.**\n\n" +
			"1. **Wait a few minutes** and retry\n" +
			"2. **Add payment info** to your VoyageAI account to lift the limit\n" +
			"3. **Switch to Ollama** for unlimited local embeddings (run setup again)",
	},
	{
		Name: "VoyageAI Not Configured",
		Expr: regexp.MustCompile(`(?i)VOYAGE_API_KEY.*not set|Missing.*VOYAGE_API_KEY|voyage.*api.*key.*required`),
		Remediation: "**No VoyageAI API key is configured.**\n\n" +
			"1. Get a key from [VoyageAI](https://www.voyageai.com/)\n" +
			"2. Re-run the setup wizard: `python setup.py`\n" +
			"3. Pick VoyageAI and paste the key when asked",
	},
	{
		Name: "Hytale Path Not Found",
		Expr: regexp.MustCompile(`(?i)ENOENT.*hytale|Hytale.*not found|Invalid.*installation.*missing`),
		Remediation: "**The Hytale installation could not be found.**\n\n" +
			"1. Make sure Hytale is installed through the official launcher\n" +
			"2. The default location is `%APPDATA%\\Hytale\\install\\release\\package\\game\\latest`\n" +
			"3. Run setup again and enter the correct path",
	},
	{
		Name: "Node.js Not Found",
		Expr: regexp.MustCompile(`(?i)node.*ENOENT|'node' is not recognized|node: command not found`),
		Remediation: "**Node.js is not installed or not on your PATH.**\n\n" +
			"1. Install the Node.js 18+ LTS from [nodejs.org](https://nodejs.org/)\n" +
			"2. Restart your terminal\n" +
			"3. Check with `node --version`",
	},
	{
		Name: "npm Not Found",
		Expr: regexp.MustCompile(`(?i)npm.*ENOENT|'npm' is not recognized|npm: command not found`),
		Remediation: "**npm is not installed or not on your PATH.**\n\n" +
			"npm ships with Node.js. Reinstall the LTS from [nodejs.org](https://nodejs.org/), " +
			"restart your terminal and check with `npm --version`.",
	},
	{
		Name: "Database Not Found",
		Expr: regexp.MustCompile(`(?i)Database.*not found|lancedb.*not found|vector.*store.*missing`),
		Remediation: "**The vector database is missing.**\n\n" +
			"Run setup again and answer \"Yes\" when asked to download the database:\n" +
			"```bash\npython setup.py\n```\n" +
			"Or delete the `data` folder and run setup to download it fresh.",
	},
}
