package runner

import "github.com/projectdiscovery/gologger"

var banner = `
   ___ _______  _______ _______ / /  ___
  / _ '/ __/ _ \/ __/ _ '/ __/ _ \/ -_)
  \_,_/_/ / .__/\__/\_,_/\__/_//_/\__/
         /_/
`

var version = "v0.0.1"

// showBanner is used to show the banner to the user
func showBanner() {
	gologger.Print().Msgf("%s\n", banner)
	gologger.Print().Msgf("\t\tprojectdiscovery.io\n\n")
}
