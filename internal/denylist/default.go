package denylist

// DefaultPatterns contains the hardcoded denylist patterns: paste sites,
// anonymous file drops and tunnels commonly used to move data out of a
// managed desktop.
var DefaultPatterns = Patterns{
	Domains: []string{
		"*.pastebin.com",
		"*.paste.ee",
		"*.hastebin.com",
		"*.ghostbin.co",
		"*.transfer.sh",
		"*.file.io",
		"*.anonfiles.com",
		"*.gofile.io",
		"*.0x0.st",
		"*.temp.sh",
		"*.webhook.site",
		"*.requestbin.net",
		"*.pipedream.net",
		"*.ngrok.io",
		"*.ngrok-free.app",
		"*.trycloudflare.com",
		"*.serveo.net",
		"*.localtunnel.me",
	},
}
