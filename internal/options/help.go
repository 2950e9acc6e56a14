package options

import (
	"fmt"
	"io"

	"github.com/tonimelisma/adltransfer/internal/transfer"
)

// helpWrapColumn is the width the option table is wrapped to.
const helpWrapColumn = 80

// WriteHelp prints the description, usage line and option table.
func WriteHelp(w io.Writer) {
	var v values

	fs := newFlagSet(&v, transfer.DefaultConfig())

	fmt.Fprintln(w, "adltransfer is designed for high-performance uploading and downloading")
	fmt.Fprintln(w, "data to and from Microsoft Azure Data Lake Store.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "# Command Line Usage:")
	fmt.Fprintln(w, "  adltransfer {Source} {Target} {AccountName} [OPTIONS]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "# Options:")
	fmt.Fprint(w, fs.FlagUsagesWrapped(helpWrapColumn))
	fmt.Fprintln(w)
	fmt.Fprintln(w, "-? is the same as --help. Long options may also be written with a single")
	fmt.Fprintln(w, "dash, e.g. -spi or -resume.")
}

type sample struct {
	description []string
	command     string
}

var samples = []sample{
	{
		description: []string{
			"Uploading all files from a local folder to Azure Data Lake Store",
			"  using the logged in user or asking for user credentials, for example,",
			"  upload '/home/me/data/' to '/MyRemotePath'",
		},
		command: "adltransfer /home/me/data/ /MyRemotePath MyAdlAccountName",
	},
	{
		description: []string{
			"Uploading all files from a local folder to Azure Data Lake Store",
			"  using a user name and password, for example,",
			"  upload '/home/me/data/' to '/MyRemotePath'",
		},
		command: "adltransfer /home/me/data/ /MyRemotePath MyAdlAccountName -u MyUserName -p MyPassword",
	},
	{
		description: []string{
			"Uploading a single file from a local folder to Azure Data Lake Store",
			"  using the logged in user or asking for user credentials, for example,",
			"  upload '/home/me/data/MyFile.txt' to '/MyRemotePath/MyFile.txt'",
		},
		command: "adltransfer /home/me/data/MyFile.txt /MyRemotePath/MyFile.txt MyAdlAccountName",
	},
	{
		description: []string{
			"Downloading all files from a path within Azure Data Lake Store to a local folder",
			"  using the logged in user or asking for user credentials, for example,",
			"  download '/MyRemotePath' to '/home/me/data/'",
		},
		command: "adltransfer /MyRemotePath /home/me/data MyAdlAccountName -d",
	},
	{
		description: []string{
			"Downloading all files from a path within Azure Data Lake Store to a local folder",
			"  using an Azure Active Directory Service Principal, for example,",
			"  download '/MyRemotePath' to '/home/me/data/'",
		},
		command: "adltransfer /MyRemotePath /home/me/data MyAdlAccountName -u {ClientId} -p {AuthenticationKey} -t {TenantId} -spi -d",
	},
}

// WriteSamples prints the command line samples.
func WriteSamples(w io.Writer) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "##")
	fmt.Fprintln(w, "## Samples ##")
	fmt.Fprintln(w, "##")

	for _, s := range samples {
		fmt.Fprintln(w)

		for _, line := range s.description {
			fmt.Fprintln(w, "# "+line)
		}

		fmt.Fprintln(w, "  "+s.command)
	}
}
