package main

import (
	"bufio"
	"fmt"
	"os"
)

// WriteBookTxt assembles the fetched book into a plain-text file named after
// the book and returns the file name. It runs only after every chapter fetch
// succeeded; partial output is never written.
func WriteBookTxt(info BookInfo, volumes []Volume) (string, error) {
	name := info.Name + ".txt"

	file, err := os.Create(name)
	if err != nil {
		return "", err
	}
	defer file.Close()

	w := bufio.NewWriter(file)

	fmt.Fprintf(w, "%s\n", info.Name)
	fmt.Fprintf(w, "作者：%s\n", info.Author)
	if len(info.Introduction) > 0 {
		fmt.Fprint(w, "\n简介：\n")
		for _, line := range info.Introduction {
			fmt.Fprintf(w, "%s\n", line)
		}
	}

	for _, volume := range volumes {
		if volume.Name != "" {
			fmt.Fprintf(w, "\n\n%s\n", volume.Name)
		}
		for _, chapter := range volume.Chapters {
			fmt.Fprintf(w, "\n%s\n\n", chapter.Title)
			for _, line := range chapter.Texts {
				fmt.Fprintf(w, "%s\n", line)
			}
		}
	}

	if err := w.Flush(); err != nil {
		return "", err
	}
	return name, nil
}
