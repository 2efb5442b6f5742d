package main

import "github.com/ValentinKolb/offlinedb/cmd"

func main() {
	cmd.Execute()
}
